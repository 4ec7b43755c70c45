package wire

import (
	"go.uber.org/zap/zapcore"
)

// MarshalLogObject implements zapcore.ObjectMarshaler to allow logging of Message with zap.Object
func (m Message) MarshalLogObject(e zapcore.ObjectEncoder) error {
	if m.HasFetch() {
		e.AddString("fetch", Text(m.Fetch))
	}
	if m.HasSuccess() {
		e.AddString("success", Text(m.Success))
	}
	if m.HasFailure() {
		e.AddString("failure", m.FailureReason())
	}
	if m.Records != nil {
		if m.Records.IsList() {
			e.AddInt("records", len(m.Records.List))
		} else {
			e.AddInt("added", len(m.Records.Added))
		}
	}
	if m.Fields != nil {
		e.AddInt("fields", len(m.Fields))
	}
	if m.HasEnd() {
		e.AddString("end", m.EndReason())
	}
	if len(m.Context) != 0 {
		e.AddString("context", m.ContextName())
	}
	if len(m.SubscriptionID) != 0 {
		e.AddString("subscriptionID", m.Subscription())
	}
	if m.Events != nil {
		return e.AddArray("events", events(m.Events))
	}
	return nil
}

// MarshalLogObject implements zapcore.ObjectMarshaler to allow logging of Event with zap.Object
func (ev Event) MarshalLogObject(e zapcore.ObjectEncoder) error {
	e.AddString("type", ev.Type)
	e.AddString("element", ev.Element)
	return nil
}

// MarshalLogObject implements zapcore.ObjectMarshaler to allow logging of Request with zap.Object
func (r Request) MarshalLogObject(e zapcore.ObjectEncoder) error {
	if err := e.AddReflected("query", r.Query); err != nil {
		return err
	}
	if err := e.AddReflected("fetch", r.Fetch); err != nil {
		return err
	}
	return e.AddReflected("format", r.Format)
}

type events []Event

func (evs events) MarshalLogArray(e zapcore.ArrayEncoder) error {
	for _, ev := range evs {
		if err := e.AppendObject(ev); err != nil {
			return err
		}
	}
	return nil
}
