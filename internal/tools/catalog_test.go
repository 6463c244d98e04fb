package tools

import "testing"

func TestCatalog(t *testing.T) {
	reg, err := NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	if reg.Len() != 37 {
		t.Errorf("expected 37 tools, got %d", reg.Len())
	}

	list := reg.List()
	if list[0].Name != "base64_encode" {
		t.Errorf("expected encoding group first, got %s", list[0].Name)
	}
	if last := list[len(list)-1].Name; last != "reverse_dns" {
		t.Errorf("expected network group last, got %s", last)
	}

	for _, d := range list {
		if d.Description == "" {
			t.Errorf("%s has no description", d.Name)
		}
		if d.Parameters["type"] != "object" {
			t.Errorf("%s parameters are not an object schema", d.Name)
		}
	}
}
