package catalog

import "testing"

func TestClassString(t *testing.T) {
	tests := []struct {
		class    Class
		expected string
	}{
		{ClassDrive, "drive"},
		{ClassInterface, "interface"},
		{ClassSystem, "system"},
		{ClassVolume, "volume"},
		{ClassController, "controller"},
		{ClassMEL, "mel"},
		{ClassFailure, "failure"},
	}

	for _, tt := range tests {
		if tt.class.String() != tt.expected {
			t.Errorf("expected %s, got %s", tt.expected, tt.class.String())
		}
	}
}

func TestParseClass(t *testing.T) {
	for _, c := range AllClasses() {
		parsed, err := ParseClass(c.String())
		if err != nil {
			t.Fatalf("ParseClass(%s): %v", c, err)
		}
		if parsed != c {
			t.Errorf("round trip failed: %s -> %s", c, parsed)
		}
	}

	if _, err := ParseClass("nonsense"); err == nil {
		t.Error("expected error for unknown class name")
	}
}

func TestEveryClassDeclared(t *testing.T) {
	for _, c := range AllClasses() {
		spec, ok := Lookup(c)
		if !ok {
			t.Fatalf("class %s has no catalog entry", c)
		}
		if spec.Measurement == "" {
			t.Errorf("class %s has no measurement", c)
		}
		if len(spec.TagKeys) == 0 {
			t.Errorf("class %s has no declared tags", c)
		}
		if len(spec.Fields) == 0 {
			t.Errorf("class %s has no declared fields", c)
		}
		if spec.TagKeys[0] != "sys_id" || spec.TagKeys[1] != "sys_name" {
			t.Errorf("class %s: tag order must start with sys_id, sys_name", c)
		}
	}
}

func TestFieldNamesUnique(t *testing.T) {
	for _, c := range AllClasses() {
		spec := MustLookup(c)
		seen := make(map[string]bool)
		for _, name := range spec.FieldNames() {
			if seen[name] {
				t.Errorf("class %s declares field %s twice", c, name)
			}
			seen[name] = true
		}
	}
}

func TestCounterFieldsSubset(t *testing.T) {
	spec := MustLookup(ClassVolume)

	declared := make(map[string]bool)
	for _, name := range spec.FieldNames() {
		declared[name] = true
	}
	for _, name := range spec.CounterFields() {
		if !declared[name] {
			t.Errorf("counter field %s not in declared fields", name)
		}
	}

	// readOps is the canonical cumulative counter on volume payloads.
	found := false
	for _, name := range spec.CounterFields() {
		if name == "readOps" {
			found = true
		}
	}
	if !found {
		t.Error("expected readOps to be a counter field on volumes")
	}
}

func TestCadenceAssignment(t *testing.T) {
	tests := []struct {
		class    Class
		expected Cadence
	}{
		{ClassVolume, CadencePerformance},
		{ClassSystem, CadencePerformance},
		{ClassInterface, CadencePerformance},
		{ClassController, CadenceController},
		{ClassDrive, CadenceHardware},
		{ClassMEL, CadenceEvents},
		{ClassFailure, CadenceFailures},
	}

	for _, tt := range tests {
		spec := MustLookup(tt.class)
		if spec.Cadence != tt.expected {
			t.Errorf("class %s: expected cadence %s, got %s", tt.class, tt.expected, spec.Cadence)
		}
	}
}
