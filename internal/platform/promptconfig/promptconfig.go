package promptconfig

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/navincodesalot/moonshot/internal/domain/reports"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
)

const embeddedFile = "prompts.yaml"

//go:embed prompts.yaml
var promptsFS embed.FS

// Summarize holds the four prompt stages sent with a VSS summarize request.
type Summarize struct {
	Prompt                     string `yaml:"prompt"`
	SystemPrompt               string `yaml:"system_prompt"`
	CaptionSummarizationPrompt string `yaml:"caption_summarization_prompt"`
	SummaryAggregationPrompt   string `yaml:"summary_aggregation_prompt"`
}

type Structuring struct {
	User      string            `yaml:"user"`
	RawHeader string            `yaml:"raw_header"`
	Personas  map[string]string `yaml:"personas"`
}

type Prompts struct {
	Version     int         `yaml:"version"`
	Summarize   Summarize   `yaml:"summarize"`
	Structuring Structuring `yaml:"structuring"`
}

// Load reads prompts from path, or from the embedded defaults when path is empty.
// Prompts missing from an override file fall back to the embedded text.
func Load(path string, log *logger.Logger) (*Prompts, error) {
	def, err := parse(mustEmbedded())
	if err != nil {
		return nil, fmt.Errorf("embedded prompts: %w", err)
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return def, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	over, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("prompts file %s: %w", path, err)
	}
	merged := merge(def, over)
	if log != nil {
		log.Info("Loaded prompt overrides", "path", path, "personas", len(over.Structuring.Personas))
	}
	return merged, validate(merged)
}

// Default returns the embedded prompts.
func Default() *Prompts {
	p, err := parse(mustEmbedded())
	if err != nil {
		panic(err)
	}
	return p
}

func mustEmbedded() []byte {
	data, err := promptsFS.ReadFile(embeddedFile)
	if err != nil {
		panic(err)
	}
	return data
}

func parse(data []byte) (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func merge(base, over *Prompts) *Prompts {
	out := *base
	pick := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	pick(&out.Summarize.Prompt, over.Summarize.Prompt)
	pick(&out.Summarize.SystemPrompt, over.Summarize.SystemPrompt)
	pick(&out.Summarize.CaptionSummarizationPrompt, over.Summarize.CaptionSummarizationPrompt)
	pick(&out.Summarize.SummaryAggregationPrompt, over.Summarize.SummaryAggregationPrompt)
	pick(&out.Structuring.User, over.Structuring.User)
	pick(&out.Structuring.RawHeader, over.Structuring.RawHeader)

	out.Structuring.Personas = map[string]string{}
	for k, v := range base.Structuring.Personas {
		out.Structuring.Personas[k] = v
	}
	for k, v := range over.Structuring.Personas {
		if strings.TrimSpace(v) != "" {
			out.Structuring.Personas[k] = v
		}
	}
	if over.Version != 0 {
		out.Version = over.Version
	}
	return &out
}

func validate(p *Prompts) error {
	if p == nil {
		return errors.New("missing prompts")
	}
	if strings.TrimSpace(p.Summarize.Prompt) == "" {
		return errors.New("summarize.prompt is empty")
	}
	if strings.TrimSpace(p.Structuring.User) == "" {
		return errors.New("structuring.user is empty")
	}
	for _, k := range []reports.Kind{reports.KindActivity, reports.KindWorkerCentric} {
		if strings.TrimSpace(p.Structuring.Personas[string(k)]) == "" {
			return fmt.Errorf("structuring.personas.%s is empty", k)
		}
	}
	return nil
}

// StructuringSystem builds the system instruction for kind with the raw summary appended.
func (p *Prompts) StructuringSystem(kind reports.Kind, rawSummary string) (string, error) {
	persona := strings.TrimSpace(p.Structuring.Personas[string(kind)])
	if persona == "" {
		return "", fmt.Errorf("no structuring persona for %q", kind)
	}
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")
	if h := strings.TrimSpace(p.Structuring.RawHeader); h != "" {
		b.WriteString(h)
		b.WriteString("\n\n")
	}
	b.WriteString(rawSummary)
	return b.String(), nil
}
