package naming

import (
	"strings"
	"testing"
)

func TestStandNames(t *testing.T) {
	if got := StandNetName("dev-stand"); got != "dev-stand-net" {
		t.Errorf("StandNetName() = %v, want dev-stand-net", got)
	}
	if got := StandBootstrapName("dev-stand"); got != "dev-stand-bootstrap" {
		t.Errorf("StandBootstrapName() = %v, want dev-stand-bootstrap", got)
	}
	if got := StandDomainName("dev-stand", "bm-2"); got != "dev-stand-bm-2" {
		t.Errorf("StandDomainName() = %v, want dev-stand-bm-2", got)
	}
	if got := StandDomainName("dev-stand", "bootstrap"); got != StandBootstrapName("dev-stand") {
		t.Errorf("StandDomainName() = %v, want the bootstrap name", got)
	}
}

func TestStandFromBootstrapName(t *testing.T) {
	tests := []struct {
		name   string
		want   string
		wantOK bool
	}{
		{"dev-stand-bootstrap", "dev-stand", true},
		{"a-bootstrap-bootstrap", "a-bootstrap", true},
		{"-bootstrap", "", false},
		{"dev-stand-net", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := StandFromBootstrapName(tt.name)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("StandFromBootstrapName(%q) = %q, %v, want %q, %v", tt.name, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestDiskDevice(t *testing.T) {
	tests := []struct {
		index int
		want  string
	}{
		{0, "vda"},
		{1, "vdb"},
		{25, "vdz"},
		{26, "vdaa"},
		{27, "vdab"},
		{51, "vdaz"},
		{52, "vdba"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := DiskDevice(tt.index); got != tt.want {
				t.Errorf("DiskDevice(%d) = %v, want %v", tt.index, got, tt.want)
			}
		})
	}
}

func TestFileNames(t *testing.T) {
	if got := DiskFileName("abc", 1); got != "abc-1.qcow2" {
		t.Errorf("DiskFileName() = %v, want abc-1.qcow2", got)
	}
	if got := ConfigDriveFileName("abc"); got != "abc-config-drive.iso" {
		t.Errorf("ConfigDriveFileName() = %v, want abc-config-drive.iso", got)
	}
}

func TestStandTag(t *testing.T) {
	if got := StandTag("dev"); got != "<hearth:stand>dev</hearth:stand>" {
		t.Errorf("StandTag() = %v", got)
	}
	if got := Tag("note", "a<b"); got != "<hearth:note>a&lt;b</hearth:note>" {
		t.Errorf("Tag() did not escape value: %v", got)
	}
}

func TestMetadataElement(t *testing.T) {
	got := MetadataElement([]string{StandTag("dev"), Tag("role", "bootstrap")})

	if !strings.HasPrefix(got, `<hearth:hearth xmlns:hearth="`+MetadataNamespace+`">`) {
		t.Errorf("unexpected opening element: %v", got)
	}
	if !strings.Contains(got, "<hearth:stand>dev</hearth:stand><hearth:role>bootstrap</hearth:role>") {
		t.Errorf("tags not embedded in order: %v", got)
	}
	if !strings.HasSuffix(got, "</hearth:hearth>") {
		t.Errorf("unexpected closing element: %v", got)
	}

	empty := MetadataElement(nil)
	if !strings.HasSuffix(empty, "></hearth:hearth>") {
		t.Errorf("empty element malformed: %v", empty)
	}
}
