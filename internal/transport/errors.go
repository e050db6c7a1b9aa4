package transport

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a delivery failure at the channel boundary.
type ErrorKind int

const (
	// KindTransient is any failure worth retrying on the next update.
	KindTransient ErrorKind = iota
	// KindTargetGone means the message (or its chat) no longer exists.
	KindTargetGone
	// KindNotModified means the platform rejected an edit identical to the current content.
	KindNotModified
)

func (k ErrorKind) String() string {
	switch k {
	case KindTargetGone:
		return "target_gone"
	case KindNotModified:
		return "not_modified"
	default:
		return "transient"
	}
}

// DeliveryError carries an ErrorKind with the underlying platform error.
type DeliveryError struct {
	Kind ErrorKind
	Err  error
}

func (e *DeliveryError) Error() string {
	if e.Err == nil {
		return "delivery: " + e.Kind.String()
	}
	return fmt.Sprintf("delivery (%s): %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// ErrTargetGone is a bare target-gone error for callers without a platform error.
var ErrTargetGone = &DeliveryError{Kind: KindTargetGone}

func TargetGone(err error) error  { return &DeliveryError{Kind: KindTargetGone, Err: err} }
func NotModified(err error) error { return &DeliveryError{Kind: KindNotModified, Err: err} }

// KindOf returns the kind of err. Unclassified errors are transient.
func KindOf(err error) ErrorKind {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindTransient
}
