package controller

import "github.com/fpga-edge/drm-agent-go/internal/drmerr"

// Reserved read-write mailbox slots (spec §4.B). Slot 0 historically
// carried the cross-process instance lock, now unused since
// AcquireInstanceLock/ReleaseInstanceLock are no-ops; slot 1 is the
// single custom field the caller may use freely; everything from
// SlotUserAreaStart on is the addressable user area.
const (
	SlotInstanceLock    = 0
	SlotUserCustomField = 1
	SlotUserAreaStart   = 2
)

// ReadUserCustomField returns the single reserved custom-field slot.
func (f *Facade) ReadUserCustomField() (uint32, error) {
	words, err := f.ReadRWMailbox()
	if err != nil {
		return 0, err
	}
	if len(words) <= SlotUserCustomField {
		return 0, drmerr.New(drmerr.ControllerError, "read-write mailbox too small to hold custom field")
	}
	return words[SlotUserCustomField], nil
}

// WriteUserCustomField overwrites the single reserved custom-field
// slot via a read-modify-write transaction, preserving every other
// slot and requiring a single lock hold for the whole operation.
func (f *Facade) WriteUserCustomField(value uint32) error {
	return f.writeSlot(SlotUserCustomField, value)
}

// ReadUserWord reads one word from the user area at the given
// zero-based index, bounds-checked against the mailbox's actual size.
func (f *Facade) ReadUserWord(index int) (uint32, error) {
	words, err := f.ReadRWMailbox()
	if err != nil {
		return 0, err
	}
	slot := SlotUserAreaStart + index
	if index < 0 || slot >= len(words) {
		return 0, drmerr.New(drmerr.BadArgument, "user mailbox index %d out of range (capacity %d)", index, len(words)-SlotUserAreaStart)
	}
	return words[slot], nil
}

// WriteUserWord writes one word into the user area at the given
// zero-based index via read-modify-write, bounds-checked the same way
// as ReadUserWord.
func (f *Facade) WriteUserWord(index int, value uint32) error {
	if index < 0 {
		return drmerr.New(drmerr.BadArgument, "user mailbox index %d out of range", index)
	}
	return f.writeSlot(SlotUserAreaStart+index, value)
}

// writeSlot performs the read-modify-write transaction a single-slot
// write requires: the register bus only exposes a whole-region write,
// so every other slot must be read back and re-written unchanged in
// the same locked section.
func (f *Facade) writeSlot(slot int, value uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, rw, err := f.drv.ReadMailbox()
	if err != nil {
		return err
	}
	if slot < 0 || slot >= len(rw) {
		return drmerr.New(drmerr.BadArgument, "mailbox slot %d out of range (capacity %d)", slot, len(rw))
	}
	rw[slot] = value
	return f.drv.WriteMailbox(rw)
}
