package brand

import (
	"strings"
	"testing"
)

func TestBuildProfileContext_ResolvesCatalogEntries(t *testing.T) {
	got := BuildProfileContext(&ProfileSelection{
		Archetype: "heroe", // accent-insensitive
		Tone:      "MOTIVADOR",
		Subtones:  []string{"energico", "Inspirador"},
	})

	if !strings.HasPrefix(got, "[Perfil de comunicación]\n") {
		t.Fatalf("missing header: %q", got)
	}
	if !strings.Contains(got, "Arquetipo: Héroe. ") {
		t.Fatalf("archetype not resolved: %q", got)
	}
	if !strings.Contains(got, "Tono: Motivador. ") {
		t.Fatalf("tone not resolved: %q", got)
	}
	if !strings.Contains(got, "- Enérgico: ") || !strings.Contains(got, "- Inspirador: ") {
		t.Fatalf("subtones not resolved: %q", got)
	}
	if !strings.HasSuffix(got, "Aplica esta guía en todo el mensaje, manteniendo consistencia con la voz de la marca.") {
		t.Fatalf("missing closing line: %q", got)
	}
}

func TestBuildProfileContext_CapsSubtonesAtTwo(t *testing.T) {
	got := BuildProfileContext(&ProfileSelection{
		Archetype: "Héroe",
		Tone:      "Motivador",
		Subtones:  []string{"Enérgico", "Inspirador", "Empoderador"},
	})

	if strings.Contains(got, "Empoderador") {
		t.Fatalf("third subtone should be dropped: %q", got)
	}
}

func TestBuildProfileContext_UnknownNamesPassThrough(t *testing.T) {
	got := BuildProfileContext(&ProfileSelection{
		Archetype: "Explorador",
		Tone:      "Sereno",
		Subtones:  []string{"Calmado"},
	})

	for _, want := range []string{"Arquetipo: Explorador", "Tono: Sereno", "- Calmado"} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in %q", want, got)
		}
	}
}

func TestBuildProfileContext_Empty(t *testing.T) {
	if got := BuildProfileContext(nil); got != "" {
		t.Fatalf("nil selection should render nothing, got %q", got)
	}
	if got := BuildProfileContext(&ProfileSelection{}); got != "" {
		t.Fatalf("empty selection should render nothing, got %q", got)
	}
	if got := BuildProfileContext(&ProfileSelection{Subtones: []string{"  "}}); got != "" {
		t.Fatalf("blank subtones should render nothing, got %q", got)
	}
}
