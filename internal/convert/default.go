// internal/convert/default.go
package convert

import (
	"time"

	"citizen-portal/internal/common/logger"
)

type Options struct {
	PdftoppmPath    string
	GhostscriptPath string
	DPI             int
	Quality         int
	Timeout         time.Duration
}

// NewDefaultChain wires pdftoppm, then in-process MuPDF, then Ghostscript
// through a PNG intermediate.
func NewDefaultChain(opts Options, log logger.Logger) *Chain {
	return NewChain(log,
		&Pdftoppm{Binary: opts.PdftoppmPath, DPI: opts.DPI, Timeout: opts.Timeout},
		&Direct{DPI: opts.DPI, Quality: opts.Quality},
		&PNGIntermediate{Binary: opts.GhostscriptPath, DPI: opts.DPI, Quality: opts.Quality, Timeout: opts.Timeout},
	)
}
