package ratemap

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// hapMapScale converts centimorgans per megabase to a per-base rate.
const hapMapScale = 1e-8

// ReadHapMap parses a HapMap-style genetic map: a header line, then
// whitespace-separated rows of chromosome, position and rate in cM/Mb. The
// rate on the last row must be zero. A gzip stream is detected by its magic
// bytes. When sequenceLength exceeds the last position the map is extended
// with a zero-rate interval.
func ReadHapMap(r io.Reader, sequenceLength float64, discrete bool) (*RateMap, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip hapmap: %w", err)
		}
		defer zr.Close()
		br = bufio.NewReader(zr)
	}

	positions := []float64{}
	rates := []float64{}
	scanner := bufio.NewScanner(br)
	line := 0
	for scanner.Scan() {
		line++
		if line == 1 {
			continue
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 3 {
			return nil, fmt.Errorf("hapmap line %d: expected at least 3 columns, got %d", line, len(fields))
		}
		pos, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("hapmap line %d: parse position: %w", line, err)
		}
		rate, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("hapmap line %d: parse rate: %w", line, err)
		}
		positions = append(positions, pos)
		rates = append(rates, rate*hapMapScale)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read hapmap: %w", err)
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("hapmap has no data rows")
	}
	if rates[len(rates)-1] != 0 {
		return nil, fmt.Errorf("hapmap: last rate must be zero, got %g", rates[len(rates)-1]/hapMapScale)
	}
	rates = rates[:len(rates)-1]
	if positions[0] != 0 {
		positions = append([]float64{0}, positions...)
		rates = append([]float64{0}, rates...)
	}
	if sequenceLength > positions[len(positions)-1] {
		positions = append(positions, sequenceLength)
		rates = append(rates, 0)
	}
	return New(positions, rates, discrete)
}

// ReadHapMapFile opens path and parses it with ReadHapMap.
func ReadHapMapFile(path string, sequenceLength float64, discrete bool) (*RateMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadHapMap(f, sequenceLength, discrete)
}
