package taskstore

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Seldon-Engine/aof/internal/aoferrors"
)

const frontmatterFence = "---"

// ParseTask splits raw task file bytes into frontmatter and body. The
// leading fence must be closed; a missing closing fence or a
// schema-invalid block is a ParseError, never a guess.
func ParseTask(raw []byte) (*Task, error) {
	text := string(raw)
	text = strings.TrimPrefix(text, string(rune(0xFEFF)))

	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != frontmatterFence {
		return nil, aoferrors.New(aoferrors.KindValidation, "ParseTask", "missing opening frontmatter fence", aoferrors.ErrParse)
	}

	closeIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontmatterFence {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		return nil, aoferrors.New(aoferrors.KindValidation, "ParseTask", "missing closing frontmatter fence", aoferrors.ErrParse)
	}

	fmBlock := strings.Join(lines[1:closeIdx], "\n")
	body := strings.TrimPrefix(strings.Join(lines[closeIdx+1:], "\n"), "\n")

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(fmBlock), &fm); err != nil {
		return nil, aoferrors.New(aoferrors.KindValidation, "ParseTask", "invalid frontmatter schema", err)
	}
	if fm.ID == "" || fm.Project == "" {
		return nil, aoferrors.New(aoferrors.KindValidation, "ParseTask", "frontmatter missing id or project", aoferrors.ErrParse)
	}

	return &Task{Frontmatter: fm, Body: body}, nil
}

// SerializeTask renders a Task back to its on-disk file representation.
func SerializeTask(t *Task) ([]byte, error) {
	fmBytes, err := yaml.Marshal(t.Frontmatter)
	if err != nil {
		return nil, aoferrors.New(aoferrors.KindValidation, "SerializeTask", "marshal frontmatter", err)
	}

	var b strings.Builder
	b.WriteString(frontmatterFence)
	b.WriteString("\n")
	b.Write(fmBytes)
	b.WriteString(frontmatterFence)
	b.WriteString("\n")
	if t.Body != "" {
		b.WriteString("\n")
		b.WriteString(t.Body)
		if !strings.HasSuffix(t.Body, "\n") {
			b.WriteString("\n")
		}
	}
	return []byte(b.String()), nil
}

// ContentHash returns the first 16 hex characters of the SHA-256 of the
// task body, used for identity outside the filesystem.
func ContentHash(t *Task) string {
	sum := sha256.Sum256([]byte(t.Body))
	return hex.EncodeToString(sum[:])[:16]
}

// extractSection returns the text of a case-insensitive "## <name>" H2
// section, trimmed, or "" if the section is absent.
func extractSection(body, name string) string {
	lines := strings.Split(body, "\n")
	want := strings.ToLower(strings.TrimSpace(name))

	start := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "## ") {
			continue
		}
		header := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, "## ")))
		if header == want {
			start = i + 1
			break
		}
	}
	if start == -1 {
		return ""
	}

	end := len(lines)
	for i := start; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "## ") {
			end = i
			break
		}
	}

	return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
}
