//go:build !linux

package hal

// CdevPin is a stub for non-linux platforms.
type CdevPin struct{}

// NewCdevPin returns ErrNotSupported on non-linux platforms.
func NewCdevPin(chip string, offset int) (*CdevPin, error) {
	return nil, ErrNotSupported
}

func (p *CdevPin) High()          {}
func (p *CdevPin) Low()           {}
func (p *CdevPin) IsHigh() bool   { return false }
func (p *CdevPin) Release() error { return nil }
