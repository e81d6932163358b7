package parser

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// FileSource implements SampleSource for reading samples from log files.
type FileSource struct {
	files     []string
	format    Format
	direction Direction

	currentFile    *os.File
	currentScanner *bufio.Scanner
	currentSource  string
	currentLine    int
	fileIndex      int

	// block collects the lines of an open multi-line record.
	block      []string
	blockStart int

	stats SourceStats
}

// NewFileSource creates a SampleSource that reads the given files in order
// and parses them with format. Every sample is tagged with dir.
func NewFileSource(files []string, format Format, dir Direction) *FileSource {
	return &FileSource{
		files:     files,
		format:    format,
		direction: dir,
		fileIndex: -1,
	}
}

// Next returns the next parsed sample.
// Malformed records are skipped and counted.
// Returns io.EOF when all files have been exhausted.
func (s *FileSource) Next(ctx context.Context) (*Sample, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rec, err := s.nextRecord()
		if err != nil {
			return nil, err
		}
		s.stats.Records++

		sample, err := s.format.ParseRecord(*rec, s.direction)
		if err != nil {
			if errors.Is(err, ErrMalformed) {
				s.stats.ParseErrors++
				continue
			}
			return nil, fmt.Errorf("%s:%d: %w", rec.Source, rec.LineNum, err)
		}

		s.stats.Samples++
		return sample, nil
	}
}

// Stats reports counts so far.
func (s *FileSource) Stats() SourceStats {
	return s.stats
}

// Close releases resources.
func (s *FileSource) Close() error {
	return s.closeCurrentFile()
}

// nextRecord returns the next raw record. Line formats yield every
// non-blank line; block formats yield everything from one start marker up
// to the next marker or the end of the file.
func (s *FileSource) nextRecord() (*Record, error) {
	marker := s.format.RecordStart()

	for {
		if s.currentScanner == nil {
			if err := s.openNextFile(); err != nil {
				return nil, err
			}
		}

		if s.currentScanner.Scan() {
			s.currentLine++
			line := s.currentScanner.Text()

			if marker == "" {
				if strings.TrimSpace(line) == "" {
					continue
				}
				return &Record{Text: line, Source: s.currentSource, LineNum: s.currentLine}, nil
			}

			if strings.Contains(line, marker) {
				prev := s.flushBlock()
				s.block = append(s.block, line)
				s.blockStart = s.currentLine
				if prev != nil {
					return prev, nil
				}
				continue
			}

			// Text before the first marker belongs to no record.
			if len(s.block) > 0 {
				s.block = append(s.block, line)
			}
			continue
		}

		if err := s.currentScanner.Err(); err != nil {
			if !errors.Is(err, bufio.ErrTooLong) {
				return nil, fmt.Errorf("reading %s: %w", s.currentSource, err)
			}
			// The scanner cannot resume past an oversized line, so the
			// rest of this file is dropped.
			s.stats.Records++
			s.stats.ParseErrors++
			s.block = s.block[:0]
			if err := s.closeCurrentFile(); err != nil {
				return nil, err
			}
			continue
		}

		// Blocks never span files.
		rec := s.flushBlock()
		if err := s.closeCurrentFile(); err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
	}
}

// maxLineSize bounds a single line. Longer lines count as one parse error
// and end the file they appear in.
const maxLineSize = 1024 * 1024

func (s *FileSource) flushBlock() *Record {
	if len(s.block) == 0 {
		return nil
	}
	rec := &Record{
		Text:    strings.Join(s.block, "\n"),
		Source:  s.currentSource,
		LineNum: s.blockStart,
	}
	s.block = s.block[:0]
	return rec
}

func (s *FileSource) openNextFile() error {
	s.fileIndex++
	if s.fileIndex >= len(s.files) {
		return io.EOF
	}

	path := s.files[s.fileIndex]
	f, err := os.Open(path) // #nosec G304 -- user-provided paths are expected
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", path, err)
	}

	s.currentFile = f
	s.currentScanner = bufio.NewScanner(f)
	s.currentScanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	s.currentSource = path
	s.currentLine = 0

	return nil
}

func (s *FileSource) closeCurrentFile() error {
	if s.currentFile != nil {
		err := s.currentFile.Close()
		s.currentFile = nil
		s.currentScanner = nil
		return err
	}
	return nil
}

// ReadAll drains a source into a slice. The source is not closed.
func ReadAll(ctx context.Context, src SampleSource) ([]Sample, error) {
	var samples []Sample
	for {
		sample, err := src.Next(ctx)
		if err == io.EOF {
			return samples, nil
		}
		if err != nil {
			return nil, err
		}
		samples = append(samples, *sample)
	}
}
