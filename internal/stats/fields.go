package stats

import (
	"errors"

	"github.com/openmohaa/match-server/internal/models"
)

var ErrUnknownField = errors.New("unknown stat field")

// Field is a stat a round delta may target
type Field int

const (
	FieldKill Field = iota + 1
	FieldDeath
	FieldAssist
	FieldShotsFired
	FieldShotsHit
	FieldDamageDealt
	FieldDamageReceived
	FieldName
	FieldLastDeathPosition
)

type fieldRule struct {
	name      string
	validator ValidatorName
	operation OperationName
	public    bool
}

var fieldRules = map[Field]fieldRule{
	FieldKill:              {"kill", ValidateNumber, OpAdd, true},
	FieldDeath:             {"death", ValidateNumber, OpAdd, true},
	FieldAssist:            {"assist", ValidateNumber, OpAdd, true},
	FieldShotsFired:        {"shotsFired", ValidateNumber, OpAdd, true},
	FieldShotsHit:          {"shotsHit", ValidateNumber, OpAdd, true},
	FieldDamageDealt:       {"damageDealt", ValidateNumberMap, OpAddMap, true},
	FieldDamageReceived:    {"damageReceived", ValidateNumberMap, OpAddMap, true},
	FieldName:              {"name", ValidateString, OpReplace, false},
	FieldLastDeathPosition: {"lastDeathPosition", ValidateVector3, OpReplace, false},
}

var fieldsByName = func() map[string]Field {
	m := make(map[string]Field, len(fieldRules))
	for f, r := range fieldRules {
		m[r.name] = f
	}
	return m
}()

// Fields returns every field in declaration order.
func Fields() []Field {
	out := make([]Field, 0, len(fieldRules))
	for f := FieldKill; f <= FieldLastDeathPosition; f++ {
		out = append(out, f)
	}
	return out
}

// ParseField resolves a wire name such as "shotsFired".
func ParseField(name string) (Field, error) {
	f, ok := fieldsByName[name]
	if !ok {
		return 0, ErrUnknownField
	}
	return f, nil
}

func (f Field) String() string {
	if r, ok := fieldRules[f]; ok {
		return r.name
	}
	return "unknown"
}

// Public reports whether the field is part of the compact public snapshot.
func (f Field) Public() bool {
	return fieldRules[f].public
}

// Validate runs the field's validator against a delta.
func (f Field) Validate(delta any) (bool, error) {
	r, ok := fieldRules[f]
	if !ok {
		return false, ErrUnknownField
	}
	v, err := LookupValidator(r.validator)
	if err != nil {
		return false, err
	}
	return v(delta), nil
}

// Merge runs the field's operation.
func (f Field) Merge(current, delta any) (any, error) {
	r, ok := fieldRules[f]
	if !ok {
		return nil, ErrUnknownField
	}
	op, err := LookupOperation(r.operation)
	if err != nil {
		return nil, err
	}
	return op(current, delta), nil
}

// Get reads the field from a stat record.
func (f Field) Get(s *models.PlayerRoundStat) any {
	switch f {
	case FieldKill:
		return s.Kill
	case FieldDeath:
		return s.Death
	case FieldAssist:
		return s.Assist
	case FieldShotsFired:
		return s.ShotsFired
	case FieldShotsHit:
		return s.ShotsHit
	case FieldDamageDealt:
		return s.DamageDealt
	case FieldDamageReceived:
		return s.DamageReceived
	case FieldName:
		return s.Name
	case FieldLastDeathPosition:
		return s.LastDeathPosition
	}
	return nil
}

func (f Field) set(s *models.PlayerRoundStat, v any) {
	switch f {
	case FieldKill:
		s.Kill, _ = ToNumber(v)
	case FieldDeath:
		s.Death, _ = ToNumber(v)
	case FieldAssist:
		s.Assist, _ = ToNumber(v)
	case FieldShotsFired:
		s.ShotsFired, _ = ToNumber(v)
	case FieldShotsHit:
		s.ShotsHit, _ = ToNumber(v)
	case FieldDamageDealt:
		s.DamageDealt, _ = ToNumberMap(v)
	case FieldDamageReceived:
		s.DamageReceived, _ = ToNumberMap(v)
	case FieldName:
		s.Name, _ = v.(string)
	case FieldLastDeathPosition:
		s.LastDeathPosition, _ = ToVec3(v)
	}
}
