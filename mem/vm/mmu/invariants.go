package mmu

import (
	"errors"
	"fmt"
)

// CheckInvariants verifies that the page tables and the inverted page table
// agree: every frame with an owner is mapped by exactly that owner page, and
// every valid page is recorded in the inverted page table. The result is
// only meaningful while no fault is in progress.
func (c *Comp) CheckInvariants() error {
	var errs []error

	entries := c.ipt.Snapshot()

	for frame, e := range entries {
		if e.Owner == nil {
			continue
		}

		page, ok := e.Owner.Lookup(e.Page.VPN)
		if !ok || !page.Valid || page.Frame != frame {
			errs = append(errs, fmt.Errorf(
				"frame %d is owned by page %d of process %d, which does not map it",
				frame, e.Page.VPN, e.Owner.PID()))
		}
	}

	for _, pt := range c.AddressSpaces() {
		for _, page := range pt.Pages() {
			if !page.Valid {
				continue
			}

			if page.Frame < 0 || page.Frame >= len(entries) {
				errs = append(errs, fmt.Errorf(
					"page %d of process %d maps frame %d that does not exist",
					page.VPN, pt.PID(), page.Frame))

				continue
			}

			e := entries[page.Frame]
			if e.Owner != pt || e.Page.VPN != page.VPN {
				errs = append(errs, fmt.Errorf(
					"page %d of process %d maps frame %d, which is not recorded",
					page.VPN, pt.PID(), page.Frame))
			}
		}
	}

	return errors.Join(errs...)
}
