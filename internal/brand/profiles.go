package brand

import "strings"

// The communication-profile catalog drives the tone controls of the chat
// console. Selections are resolved against it to enrich the prompt with the
// catalog descriptions; unknown names still pass through verbatim.

type Subtone struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Tone struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Subtones    []Subtone `json:"subtones"`
}

type Archetype struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Tones       []Tone `json:"tones"`
}

// ProfileSelection is the caller-chosen voice for a single turn.
type ProfileSelection struct {
	Archetype string   `json:"archetype"`
	Tone      string   `json:"tone"`
	Subtones  []string `json:"subtones"`
}

var communicationProfiles = []Archetype{
	{
		Name:        "Héroe",
		Description: "Voz retadora y orientada a logros que impulsa a tomar acción inmediata para resolver un reto específico.",
		Tones: []Tone{
			{
				Name:        "Motivador",
				Description: "Activa determinación, habla de metas alcanzables y refuerza la confianza en el lector.",
				Subtones: []Subtone{
					{Name: "Enérgico", Description: "Mantiene un pulso alto, verbos de acción y frases cortas que transmiten urgencia positiva."},
					{Name: "Inspirador", Description: "Conecta con propósito y valores, utilizando ejemplos que demuestran superación real."},
					{Name: "Empoderador", Description: "Remarca la capacidad del lector para liderar el cambio y ofrece recursos concretos para hacerlo."},
				},
			},
			{
				Name:        "Estratégico",
				Description: "Convierte la visión heroica en planes tácticos claros con indicadores de seguimiento.",
				Subtones: []Subtone{
					{Name: "Metódico", Description: "Presenta pasos secuenciales con responsables y tiempos definidos."},
					{Name: "Medible", Description: "Añade métricas y tableros que permiten evaluar avances."},
				},
			},
		},
	},
	{
		Name:        "Mago",
		Description: "Conecta conocimiento y soluciones inesperadas, mostrando cómo la innovación desbloquea posibilidades nuevas.",
		Tones: []Tone{
			{
				Name:        "Transformador",
				Description: "Explica procesos de cambio profundo con lenguaje claro y metáforas que simplifican lo complejo.",
				Subtones: []Subtone{
					{Name: "Enigmático", Description: "Genera curiosidad con preguntas o insights que anuncian una revelación valiosa."},
					{Name: "Reflexivo", Description: "Analiza causas y consecuencias, invitando a pensar desde nuevas perspectivas."},
				},
			},
			{
				Name:        "Visionario",
				Description: "Describe el futuro deseado con detalle suficiente para que parezca alcanzable hoy.",
				Subtones: []Subtone{
					{Name: "Innovador", Description: "Destaca soluciones que rompen la forma tradicional de hacer las cosas."},
					{Name: "Anticipador", Description: "Adelanta tendencias y prepara a la audiencia para capitalizarlas."},
				},
			},
		},
	},
	{
		Name:        "Cuidador",
		Description: "Acompaña con empatía y protección, priorizando el bienestar de la audiencia en cada mensaje.",
		Tones: []Tone{
			{
				Name:        "Empático",
				Description: "Reconoce el contexto emocional del lector antes de proponer cualquier acción.",
				Subtones: []Subtone{
					{Name: "Cercano", Description: "Usa un lenguaje cálido y directo, como una conversación de confianza."},
					{Name: "Paciente", Description: "Explica sin prisa, validando dudas y repitiendo lo esencial."},
				},
			},
			{
				Name:        "Responsable",
				Description: "Transmite rigor y respaldo profesional con información verificable.",
				Subtones: []Subtone{
					{Name: "Preciso", Description: "Cita datos y fuentes concretas que sostienen cada afirmación."},
					{Name: "Prudente", Description: "Señala límites y contraindicaciones sin alarmar."},
				},
			},
		},
	},
}

func normalizeProfileName(value string) string {
	replacer := strings.NewReplacer(
		"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u",
		"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "ñ", "n", "Ñ", "n",
	)
	return strings.TrimSpace(strings.ToLower(replacer.Replace(value)))
}

func findArchetype(name string) *Archetype {
	target := normalizeProfileName(name)
	if target == "" {
		return nil
	}
	for i := range communicationProfiles {
		if normalizeProfileName(communicationProfiles[i].Name) == target {
			return &communicationProfiles[i]
		}
	}
	return nil
}

func findTone(archetype *Archetype, name string) *Tone {
	target := normalizeProfileName(name)
	if target == "" {
		return nil
	}
	if archetype != nil {
		for i := range archetype.Tones {
			if normalizeProfileName(archetype.Tones[i].Name) == target {
				return &archetype.Tones[i]
			}
		}
	}
	for i := range communicationProfiles {
		for j := range communicationProfiles[i].Tones {
			if normalizeProfileName(communicationProfiles[i].Tones[j].Name) == target {
				return &communicationProfiles[i].Tones[j]
			}
		}
	}
	return nil
}

func findSubtone(tone *Tone, name string) *Subtone {
	target := normalizeProfileName(name)
	if target == "" {
		return nil
	}
	if tone != nil {
		for i := range tone.Subtones {
			if normalizeProfileName(tone.Subtones[i].Name) == target {
				return &tone.Subtones[i]
			}
		}
	}
	for i := range communicationProfiles {
		for j := range communicationProfiles[i].Tones {
			for k := range communicationProfiles[i].Tones[j].Subtones {
				if normalizeProfileName(communicationProfiles[i].Tones[j].Subtones[k].Name) == target {
					return &communicationProfiles[i].Tones[j].Subtones[k]
				}
			}
		}
	}
	return nil
}

// ProfilesSummary returns the whole catalog for the console's pickers.
func ProfilesSummary() []Archetype {
	return communicationProfiles
}

// BuildProfileContext renders the supplemental prompt section for a turn's
// voice selection. At most two subtones are honored. Returns "" when the
// selection is empty.
func BuildProfileContext(selection *ProfileSelection) string {
	if selection == nil {
		return ""
	}
	archetypeName := strings.TrimSpace(selection.Archetype)
	toneName := strings.TrimSpace(selection.Tone)

	var subtones []string
	for _, v := range selection.Subtones {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		seen := false
		for _, existing := range subtones {
			if existing == v {
				seen = true
				break
			}
		}
		if !seen {
			subtones = append(subtones, v)
		}
	}
	if len(subtones) > 2 {
		subtones = subtones[:2]
	}

	archetype := findArchetype(archetypeName)
	tone := findTone(archetype, toneName)

	var lines []string
	if archetypeName != "" {
		if archetype != nil {
			lines = append(lines, "Arquetipo: "+archetype.Name+". "+archetype.Description)
		} else {
			lines = append(lines, "Arquetipo: "+archetypeName)
		}
	}
	if toneName != "" {
		if tone != nil {
			lines = append(lines, "Tono: "+tone.Name+". "+tone.Description)
		} else {
			lines = append(lines, "Tono: "+toneName)
		}
	}
	if len(subtones) > 0 {
		lines = append(lines, "Subtonos prioritarios:")
		for _, name := range subtones {
			if entry := findSubtone(tone, name); entry != nil {
				lines = append(lines, "- "+entry.Name+": "+entry.Description)
			} else {
				lines = append(lines, "- "+name)
			}
		}
	}
	if len(lines) == 0 {
		return ""
	}
	lines = append(lines, "Aplica esta guía en todo el mensaje, manteniendo consistencia con la voz de la marca.")
	return "[Perfil de comunicación]\n" + strings.Join(lines, "\n")
}
