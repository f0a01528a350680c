package report

import (
	"strings"
	"testing"
)

func TestClassifySection(t *testing.T) {
	cases := []struct {
		name    string
		snippet string
		want    SectionLabel
	}{
		{"modelling wins over entries", "Content Modelling\nEntries reference 40 content types", SectionContentModelling},
		{"actions", "Actions Required\nFix A: rotate tokens", SectionActionsRequired},
		{"strengths before descriptions", "Strengths\nGood config: description text", SectionStrengths},
		{"entries", "Entries\nThere are 1200 entries in the stack", SectionEntries},
		{"users and roles", "Users & Roles\nAdmins: 4", SectionUsersAndRoles},
		{"stack overview", "Stack Overview\nStack: acme", SectionStackOverview},
		{"case folded", "WEBHOOKS\n3 configured", SectionWebhooks},
		{"general", "Nothing recognizable lives here.", SectionGeneral},
		{"empty", "", SectionGeneral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySection(tc.snippet); got != tc.want {
				t.Fatalf("ClassifySection(%q) = %q, want %q", tc.snippet, got, tc.want)
			}
		})
	}
}

func TestClassifySectionOnlyInspectsWindow(t *testing.T) {
	snippet := strings.Repeat("x", classifierWindow) + " webhooks"
	if got := ClassifySection(snippet); got != SectionGeneral {
		t.Fatalf("expected General for match beyond window, got %q", got)
	}
}

func TestSectionLabelTableData(t *testing.T) {
	label := SectionContentTypes.TableData()
	if label != "Content Types - Table Data" {
		t.Fatalf("unexpected table label %q", label)
	}
	if !label.IsTableData() || label.Base() != SectionContentTypes {
		t.Fatalf("table label helpers disagree for %q", label)
	}
	if label.TableData() != label {
		t.Fatal("table data suffix applied twice")
	}
}

func TestLabelsEndWithGeneral(t *testing.T) {
	labels := Labels()
	if labels[0] != SectionContentModelling {
		t.Fatalf("expected Content Modelling first, got %q", labels[0])
	}
	if labels[len(labels)-1] != SectionGeneral {
		t.Fatalf("expected General last, got %q", labels[len(labels)-1])
	}
}

func TestIsMajorHeaderLine(t *testing.T) {
	cases := map[string]bool{
		"Actions Required":        true,
		"ACTIONS REQUIRED: 4":     true,
		"Strengths":               true,
		"Stack: acme":             false,
		"Assetsmanager is slow":   false,
		"Entries in draft state":  true,
		"Fix A: description text": false,
	}
	for line, want := range cases {
		if got := isMajorHeaderLine(line); got != want {
			t.Errorf("isMajorHeaderLine(%q) = %v, want %v", line, got, want)
		}
	}
}
