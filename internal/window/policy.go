// Package window decides which chat sessions may stay open for a viewport.
package window

type Viewport string

const (
	Wide   Viewport = "wide"
	Narrow Viewport = "narrow"
)

const DefaultDesktopMax = 3

// Classify maps a viewport width to Wide or Narrow. Widths below the
// breakpoint are narrow.
func Classify(widthPx, breakpointPx int) Viewport {
	if widthPx < breakpointPx {
		return Narrow
	}
	return Wide
}

// Policy is the admission rule for open sessions. Minimized sessions count
// against the cap like maximized ones.
type Policy struct {
	DesktopMax int
}

func NewPolicy(desktopMax int) Policy {
	if desktopMax <= 0 {
		desktopMax = DefaultDesktopMax
	}
	return Policy{DesktopMax: desktopMax}
}

// Admit returns the sessions to close before newID is opened. openIDs must be
// in open order, oldest first. On a wide viewport the oldest sessions are
// evicted until there is room for one more; on a narrow viewport every other
// session is evicted.
func (p Policy) Admit(openIDs []string, newID string, vp Viewport) []string {
	for _, id := range openIDs {
		if id == newID {
			return nil
		}
	}

	if vp == Narrow {
		return append([]string(nil), openIDs...)
	}

	limit := p.cap()
	if len(openIDs) < limit {
		return nil
	}
	return append([]string(nil), openIDs[:len(openIDs)-limit+1]...)
}

// Enforce returns the sessions to close so that openIDs satisfies the policy
// for vp. A narrow viewport keeps only the most recently opened session; a
// wide one keeps the newest DesktopMax.
func (p Policy) Enforce(openIDs []string, vp Viewport) []string {
	keep := p.cap()
	if vp == Narrow {
		keep = 1
	}
	if len(openIDs) <= keep {
		return nil
	}
	return append([]string(nil), openIDs[:len(openIDs)-keep]...)
}

// Capacity is the number of sessions that may be open at once for vp.
func (p Policy) Capacity(vp Viewport) int {
	if vp == Narrow {
		return 1
	}
	return p.cap()
}

func (p Policy) cap() int {
	if p.DesktopMax <= 0 {
		return DefaultDesktopMax
	}
	return p.DesktopMax
}
