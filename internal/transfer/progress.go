package transfer

import "io"

// ProgressFunc receives the fraction of the body sent so far, from 0 to 1
type ProgressFunc func(fraction float64)

// progressReader wraps an io.Reader and reports how much of it has been read
type progressReader struct {
	reader   io.Reader
	total    int64
	current  int64
	progress ProgressFunc
}

func newProgressReader(reader io.Reader, total int64, progress ProgressFunc) *progressReader {
	return &progressReader{
		reader:   reader,
		total:    total,
		progress: progress,
	}
}

// Read implements io.Reader and reports progress after every chunk
func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.current += int64(n)
		if pr.total > 0 {
			fraction := float64(pr.current) / float64(pr.total)
			if fraction > 1 {
				fraction = 1
			}
			pr.progress(fraction)
		}
	}

	return n, err
}
