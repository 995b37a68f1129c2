package common

import (
	"fmt"
	"os"
)

// Progress prints "0%..20%..40%.." style heartbeat lines to stdout as a
// long pass works through a known total. Output goes to stdout (not the
// log) so a console user sees liveness even with logging to a file.
type Progress struct {
	total     int
	nextPrint int
	out       *os.File
}

// NewProgress returns a heartbeat printer for a pass over total items.
// A non-positive total disables printing.
func NewProgress(total int) *Progress {
	return &Progress{total: total, out: os.Stdout}
}

// Step reports that done items are complete.
func (p *Progress) Step(done int) {
	if p.total <= 0 {
		return
	}
	for done*100/p.total >= p.nextPrint && p.nextPrint < 100 {
		fmt.Fprintf(p.out, "%d%%..", p.nextPrint)
		p.nextPrint += 20
	}
}

// Finish completes the line.
func (p *Progress) Finish() {
	if p.total <= 0 {
		return
	}
	for p.nextPrint <= 100 {
		fmt.Fprintf(p.out, "%d%%..", p.nextPrint)
		p.nextPrint += 20
	}
	fmt.Fprintln(p.out)
	p.nextPrint = 200
}
