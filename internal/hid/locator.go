package hid

import "slices"

const (
	// VendorID is the USB vendor ID of the cooler's controller chip.
	VendorID uint16 = 0x1a2c

	// ProductID is the USB product ID the cooler enumerates with. The chip
	// identifies itself as a generic "USB Gaming Keyboard".
	ProductID uint16 = 0x434d
)

// Locator finds candidate cooler interfaces without opening any of them.
// Enumeration is purely descriptive and safe to repeat.
type Locator struct {
	enumerate DeviceEnumerator
}

// LocatorOption is a functional option for configuring a Locator.
type LocatorOption func(*Locator)

// WithEnumerator sets a custom device enumerator for testing.
func WithEnumerator(fn DeviceEnumerator) LocatorOption {
	return func(l *Locator) {
		l.enumerate = fn
	}
}

// NewLocator creates a locator backed by the hidapi enumerator.
func NewLocator(opts ...LocatorOption) *Locator {
	l := &Locator{enumerate: EnumerateCoolers}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ListCandidates returns every cooler interface ordered by how likely it is
// to be the control interface: interfaces advertising a usage page first,
// then enumeration order. An empty slice means no cooler is attached, which
// is distinct from an enumeration failure.
func (l *Locator) ListCandidates() ([]DeviceInfo, error) {
	infos, err := l.enumerate(VendorID, ProductID)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(infos, func(a, b DeviceInfo) int {
		return candidateRank(a) - candidateRank(b)
	})

	return infos, nil
}

func candidateRank(info DeviceInfo) int {
	if info.UsagePage != 0 {
		return 0
	}
	return 1
}
