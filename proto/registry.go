package proto

import "fmt"

// New constructs a fresh Protocol state machine by its nanomsg name (the
// strings wire.Name already maps ids to: "push", "pull", "pair", "pub",
// "sub", "bus", "req", "rep", "surveyor", "respondent"). Used by the
// Socket/Session layer so a new socket can be created from a user-supplied
// pattern name without that layer importing every concrete protocol type.
func New(name string) (Protocol, error) {
	switch name {
	case "push":
		return NewPush(), nil
	case "pull":
		return NewPull(), nil
	case "pair":
		return NewPair(), nil
	case "pub":
		return NewPub(), nil
	case "sub":
		return NewSub(), nil
	case "bus":
		return NewBus(), nil
	case "req":
		return NewReq(), nil
	case "rep":
		return NewRep(), nil
	case "surveyor":
		return NewSurveyor(), nil
	case "respondent":
		return NewRespondent(), nil
	default:
		return nil, fmt.Errorf("proto: unknown protocol %q", name)
	}
}
