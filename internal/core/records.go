package core

import (
	"encoding/json"
	"fmt"
)

// Records returns the collection of s named by kind, in the shape accepted
// by Set and by the backends' Save.
func (s Snapshot) Records(kind EntityKind) any {
	switch kind {
	case KindUser:
		return s.User
	case KindTransactions:
		return s.Transactions
	case KindGoals:
		return s.Goals
	case KindBudgets:
		return s.Budgets
	default:
		return nil
	}
}

// Set replaces one collection of s. records must be *User or User for
// KindUser, []Transaction, []Goal or []Budget for the others. Slices are
// copied.
func (s *Snapshot) Set(kind EntityKind, records any) error {
	switch kind {
	case KindUser:
		switch u := records.(type) {
		case *User:
			if u == nil {
				s.User = nil
				return nil
			}
			cp := *u
			s.User = &cp
		case User:
			s.User = &u
		default:
			return fmt.Errorf("kind %s: unexpected records type %T", kind, records)
		}
	case KindTransactions:
		v, ok := records.([]Transaction)
		if !ok {
			return fmt.Errorf("kind %s: unexpected records type %T", kind, records)
		}
		s.Transactions = append([]Transaction(nil), v...)
	case KindGoals:
		v, ok := records.([]Goal)
		if !ok {
			return fmt.Errorf("kind %s: unexpected records type %T", kind, records)
		}
		s.Goals = append([]Goal(nil), v...)
	case KindBudgets:
		v, ok := records.([]Budget)
		if !ok {
			return fmt.Errorf("kind %s: unexpected records type %T", kind, records)
		}
		s.Budgets = append([]Budget(nil), v...)
	default:
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	return nil
}

// DecodeRecords decodes a JSON blob of the given kind into s.
func (s *Snapshot) DecodeRecords(kind EntityKind, payload []byte) error {
	var err error
	switch kind {
	case KindUser:
		var u *User
		if err = json.Unmarshal(payload, &u); err == nil {
			s.User = u
		}
	case KindTransactions:
		var v []Transaction
		if err = json.Unmarshal(payload, &v); err == nil {
			s.Transactions = v
		}
	case KindGoals:
		var v []Goal
		if err = json.Unmarshal(payload, &v); err == nil {
			s.Goals = v
		}
	case KindBudgets:
		var v []Budget
		if err = json.Unmarshal(payload, &v); err == nil {
			s.Budgets = v
		}
	default:
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	return nil
}

// EncodeRecords validates records against kind and returns their JSON form.
func EncodeRecords(kind EntityKind, records any) ([]byte, error) {
	var tmp Snapshot
	if err := tmp.Set(kind, records); err != nil {
		return nil, err
	}
	return json.Marshal(tmp.Records(kind))
}
