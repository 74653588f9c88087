package bes

import (
	"context"
	"fmt"
)

// BoxState is the position of an earbud relative to its charging case
// and the wearer's head, as the firmware simulates it.
type BoxState string

const (
	InBoxClosed  BoxState = "IN_BOX_CLOSED"
	InBoxOpen    BoxState = "IN_BOX_OPEN"
	OutBox       BoxState = "OUT_BOX"
	OutBoxWeared BoxState = "OUT_BOX_WEARED"
)

// ParseBoxState validates a state string reported by the firmware.
func ParseBoxState(s string) (BoxState, error) {
	switch state := BoxState(s); state {
	case InBoxClosed, InBoxOpen, OutBox, OutBoxWeared:
		return state, nil
	default:
		return "", fmt.Errorf("%w: box state %q", ErrUnparseableResponse, s)
	}
}

// IsBoxOpen reports whether the case lid is open. An earbud out of the
// case implies an open lid.
func (s BoxState) IsBoxOpen() bool {
	return s == InBoxOpen || s == OutBox || s == OutBoxWeared
}

// IsInBox reports whether the earbud is inside the case.
func (s BoxState) IsInBox() bool {
	return s == InBoxClosed || s == InBoxOpen
}

// IsOnHead reports whether the earbud is worn.
func (s BoxState) IsOnHead() bool {
	return s == OutBoxWeared
}

// GetBoxState queries the firmware's simulated box state.
func (d *Device) GetBoxState(ctx context.Context) (BoxState, error) {
	message, err := d.send(ctx, cmdGetBoxState, true)
	if err != nil {
		return "", err
	}
	return parseBoxState(message)
}

// GetBoxOpenState reports whether the case lid is open.
func (d *Device) GetBoxOpenState(ctx context.Context) (bool, error) {
	state, err := d.GetBoxState(ctx)
	if err != nil {
		return false, err
	}
	return state.IsBoxOpen(), nil
}

// GetInBoxState reports whether the earbud is in the case.
func (d *Device) GetInBoxState(ctx context.Context) (bool, error) {
	state, err := d.GetBoxState(ctx)
	if err != nil {
		return false, err
	}
	return state.IsInBox(), nil
}

// GetOnHeadState reports whether the earbud is worn.
func (d *Device) GetOnHeadState(ctx context.Context) (bool, error) {
	state, err := d.GetBoxState(ctx)
	if err != nil {
		return false, err
	}
	return state.IsOnHead(), nil
}

// SetInBoxState drives the earbud into or out of the case, issuing the
// intermediate transitions the current state requires. Reaching the
// target state already is not an error.
func (d *Device) SetInBoxState(ctx context.Context, inBox bool) error {
	current, err := d.GetBoxState(ctx)
	if err != nil {
		return err
	}
	if current.IsInBox() == inBox {
		return nil
	}
	if current.IsInBox() {
		if !current.IsBoxOpen() {
			if _, err := d.send(ctx, cmdOpenBox, true); err != nil {
				return err
			}
		}
		_, err := d.send(ctx, cmdFetchOut, true)
		return err
	}
	if current.IsOnHead() {
		if _, err := d.send(ctx, cmdWearDown, true); err != nil {
			return err
		}
	}
	_, err = d.send(ctx, cmdPutIn, true)
	return err
}

// SetOnHeadState drives the earbud onto or off the wearer's head,
// issuing the intermediate transitions the current state requires.
// Reaching the target state already is not an error.
func (d *Device) SetOnHeadState(ctx context.Context, onHead bool) error {
	current, err := d.GetBoxState(ctx)
	if err != nil {
		return err
	}
	if current.IsOnHead() == onHead {
		return nil
	}
	if current.IsOnHead() {
		_, err := d.send(ctx, cmdWearDown, true)
		return err
	}
	if !current.IsBoxOpen() {
		if _, err := d.send(ctx, cmdOpenBox, true); err != nil {
			return err
		}
	}
	if current.IsInBox() {
		if _, err := d.send(ctx, cmdFetchOut, true); err != nil {
			return err
		}
	}
	_, err = d.send(ctx, cmdWearUp, true)
	return err
}

// OpenBox opens the case lid, which also reconnects the board with the
// last paired phones. Opening an already open case is an error.
func (d *Device) OpenBox(ctx context.Context) error {
	open, err := d.GetBoxOpenState(ctx)
	if err != nil {
		return err
	}
	if open {
		return fmt.Errorf("%w: the box is already open", ErrInvalidArgument)
	}
	_, err = d.send(ctx, cmdOpenBox, true)
	return err
}

// FetchOut takes the earbud out of the case.
func (d *Device) FetchOut(ctx context.Context) error {
	inBox, err := d.GetInBoxState(ctx)
	if err != nil {
		return err
	}
	if !inBox {
		return fmt.Errorf("%w: the earbud is not in the box", ErrInvalidArgument)
	}
	_, err = d.send(ctx, cmdFetchOut, true)
	return err
}

// WearUp puts the earbud on the wearer's head. The earbud must already
// be out of the case.
func (d *Device) WearUp(ctx context.Context) error {
	current, err := d.GetBoxState(ctx)
	if err != nil {
		return err
	}
	if current.IsOnHead() {
		return fmt.Errorf("%w: the earbud is already on head", ErrInvalidArgument)
	}
	if current.IsInBox() {
		return fmt.Errorf("%w: the earbud is in the box", ErrInvalidArgument)
	}
	_, err = d.send(ctx, cmdWearUp, true)
	return err
}

// WearDown takes the earbud off the wearer's head.
func (d *Device) WearDown(ctx context.Context) error {
	onHead, err := d.GetOnHeadState(ctx)
	if err != nil {
		return err
	}
	if !onHead {
		return fmt.Errorf("%w: the earbud is not on head", ErrInvalidArgument)
	}
	_, err = d.send(ctx, cmdWearDown, true)
	return err
}

// PutIn places the earbud in the case. The earbud must be out of the
// case and off the head.
func (d *Device) PutIn(ctx context.Context) error {
	current, err := d.GetBoxState(ctx)
	if err != nil {
		return err
	}
	if current.IsInBox() {
		return fmt.Errorf("%w: the earbud is already in the box", ErrInvalidArgument)
	}
	if current.IsOnHead() {
		return fmt.Errorf("%w: the earbud is on head", ErrInvalidArgument)
	}
	_, err = d.send(ctx, cmdPutIn, true)
	return err
}

// CloseBox closes the case lid, disconnecting the board from any
// connected phones. Closing an already closed case is an error.
func (d *Device) CloseBox(ctx context.Context) error {
	open, err := d.GetBoxOpenState(ctx)
	if err != nil {
		return err
	}
	if !open {
		return fmt.Errorf("%w: the box is already closed", ErrInvalidArgument)
	}
	_, err = d.send(ctx, cmdCloseBox, true)
	return err
}

// PowerOn soft powers on the board by opening the case. With
// ignoreError a board that is already powered on is left alone.
func (d *Device) PowerOn(ctx context.Context, ignoreError bool) error {
	open, err := d.GetBoxOpenState(ctx)
	if err != nil {
		return err
	}
	if open {
		if ignoreError {
			d.log.Warn("The board is already in working status, cannot power on again")
			return nil
		}
		return fmt.Errorf("%w: the board is already in working status", ErrInvalidArgument)
	}
	_, err = d.send(ctx, cmdOpenBox, true)
	return err
}

// PowerOff soft powers off the board by returning the earbud to the
// case and closing it. With ignoreError a board that is already off is
// left alone.
func (d *Device) PowerOff(ctx context.Context, ignoreError bool) error {
	open, err := d.GetBoxOpenState(ctx)
	if err != nil {
		return err
	}
	if !open {
		if ignoreError {
			d.log.Warn("The board is already in rest status, cannot power off again")
			return nil
		}
		return fmt.Errorf("%w: the board is already in rest status", ErrInvalidArgument)
	}
	if err := d.SetInBoxState(ctx, true); err != nil {
		return err
	}
	return d.CloseBox(ctx)
}
