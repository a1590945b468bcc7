package models

import (
	"reflect"
	"strings"
	"testing"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestInstance_Fields(t *testing.T) {
	typ := reflect.TypeOf(Instance{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "size:128")
	assertGormTag(t, typ, "ChallengeID", "not null")
	assertGormTag(t, typ, "ChallengeID", "index")
	assertGormTag(t, typ, "TeamID", "index")
	assertGormTag(t, typ, "UserID", "not null")
	assertGormTag(t, typ, "ExpiresAt", "index")

	assertFieldType(t, typ, "ID", "string")
	assertFieldType(t, typ, "TeamID", "*uint")
	assertFieldType(t, typ, "UserID", "uint")
	assertFieldType(t, typ, "CreatedAt", "int64")
	assertFieldType(t, typ, "ExpiresAt", "int64")
	assertFieldType(t, typ, "Challenge", "models.Challenge")
}

func TestInstance_SubjectID(t *testing.T) {
	team := uint(7)
	tests := []struct {
		name string
		inst Instance
		want uint
	}{
		{"team mode", Instance{TeamID: &team, UserID: 3}, 7},
		{"user mode", Instance{TeamID: nil, UserID: 3}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.inst.SubjectID(); got != tt.want {
				t.Errorf("SubjectID() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestChallenge_Fields(t *testing.T) {
	typ := reflect.TypeOf(Challenge{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "Name", "not null")
	assertGormTag(t, typ, "Image", "type:text")
	assertGormTag(t, typ, "InternalPort", "not null")
	assertGormTag(t, typ, "ConnectType", "default:tcp")
	assertGormTag(t, typ, "Volumes", "type:text")

	assertFieldType(t, typ, "InternalPort", "int")
	assertFieldType(t, typ, "Initial", "int")
}

func TestSetting_Fields(t *testing.T) {
	typ := reflect.TypeOf(Setting{})

	assertGormTag(t, typ, "Key", "primaryKey")
	assertGormTag(t, typ, "Key", "size:128")
	assertGormTag(t, typ, "Value", "type:text")
}
