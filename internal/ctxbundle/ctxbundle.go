// Package ctxbundle assembles the context bundle handed to an executor
// before dispatch: a resolver chain over filesystem, inline, and
// skill-manifest sources, with a token-budget evaluation over the
// resolved text. Resolved content is cached the same way the daemon
// caches other reference lookups: an expirable.LRU.
package ctxbundle

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Seldon-Engine/aof/internal/aoferrors"
)

// Resolver resolves one reference string to its content.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, bool, error)
}

// FilesystemResolver resolves refs as paths relative to Base. Absolute
// paths and any path that normalizes outside Base are refused.
type FilesystemResolver struct {
	Base string
}

// Resolve implements Resolver.
func (r FilesystemResolver) Resolve(_ context.Context, ref string) (string, bool, error) {
	if filepath.IsAbs(ref) {
		return "", false, aoferrors.New(aoferrors.KindValidation, "FilesystemResolver.Resolve", "absolute paths are refused: "+ref, nil)
	}
	joined := filepath.Join(r.Base, ref)
	rel, err := filepath.Rel(r.Base, joined)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false, aoferrors.New(aoferrors.KindValidation, "FilesystemResolver.Resolve", "path escapes base directory: "+ref, nil)
	}

	data, err := os.ReadFile(joined)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, aoferrors.New(aoferrors.KindFatalIO, "FilesystemResolver.Resolve", "read "+ref, err)
	}
	return string(data), true, nil
}

// InlineResolver resolves refs by direct lookup in a provided map.
type InlineResolver struct {
	Values map[string]string
}

// Resolve implements Resolver.
func (r InlineResolver) Resolve(_ context.Context, ref string) (string, bool, error) {
	v, ok := r.Values[ref]
	return v, ok, nil
}

// skillManifest is the on-disk shape of skill.json.
type skillManifest struct {
	Entrypoint string `json:"entrypoint"`
}

// SkillResolver resolves refs of the form "skill:<name>" by loading
// <Base>/<name>/skill.json and reading its entrypoint file.
type SkillResolver struct {
	Base string
}

const skillPrefix = "skill:"

// Resolve implements Resolver.
func (r SkillResolver) Resolve(_ context.Context, ref string) (string, bool, error) {
	if !strings.HasPrefix(ref, skillPrefix) {
		return "", false, nil
	}
	name := strings.TrimPrefix(ref, skillPrefix)
	if name == "" || strings.Contains(name, "..") {
		return "", false, aoferrors.New(aoferrors.KindValidation, "SkillResolver.Resolve", "invalid skill name: "+ref, nil)
	}

	manifestPath := filepath.Join(r.Base, name, "skill.json")
	manifestData, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, aoferrors.New(aoferrors.KindFatalIO, "SkillResolver.Resolve", "read manifest for "+name, err)
	}

	var manifest skillManifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return "", false, aoferrors.New(aoferrors.KindValidation, "SkillResolver.Resolve", "parse manifest for "+name, err)
	}
	if manifest.Entrypoint == "" {
		return "", false, aoferrors.New(aoferrors.KindValidation, "SkillResolver.Resolve", "skill "+name+" has no entrypoint", nil)
	}

	entryPath := filepath.Join(r.Base, name, manifest.Entrypoint)
	rel, err := filepath.Rel(filepath.Join(r.Base, name), entryPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false, aoferrors.New(aoferrors.KindValidation, "SkillResolver.Resolve", "entrypoint escapes skill directory: "+name, nil)
	}

	data, err := os.ReadFile(entryPath)
	if err != nil {
		return "", false, aoferrors.New(aoferrors.KindFatalIO, "SkillResolver.Resolve", "read entrypoint for "+name, err)
	}
	return string(data), true, nil
}

// BudgetPolicy sets the half-open thresholds used by EvaluateBudget.
// Zero value disables budget evaluation (always "ok").
type BudgetPolicy struct {
	Target   int
	Warn     int
	Critical int
}

// BudgetStatus is the resolved verdict for a bundle's total character count.
type BudgetStatus string

const (
	BudgetOK       BudgetStatus = "ok"
	BudgetWarn     BudgetStatus = "warn"
	BudgetCritical BudgetStatus = "critical"
	BudgetOver     BudgetStatus = "over"
)

// EstimateTokens approximates a token count as ceil(chars / 4).
func EstimateTokens(chars int) int {
	return int(math.Ceil(float64(chars) / 4))
}

// EvaluateBudget classifies totalChars against policy's half-open
// thresholds. A zero-value policy always returns BudgetOK.
func EvaluateBudget(totalChars int, policy BudgetPolicy) BudgetStatus {
	if policy.Target == 0 && policy.Warn == 0 && policy.Critical == 0 {
		return BudgetOK
	}
	switch {
	case totalChars <= policy.Target:
		return BudgetOK
	case totalChars <= policy.Warn:
		return BudgetWarn
	case totalChars <= policy.Critical:
		return BudgetCritical
	default:
		return BudgetOver
	}
}

// Bundle is the assembled context handed to an executor.
type Bundle struct {
	Sections     map[string]string
	TotalChars   int
	TotalTokens  int
	BudgetStatus BudgetStatus
	Unresolved   []string
}

// Assembler resolves a set of references through a resolver chain,
// caching resolved content.
type Assembler struct {
	resolvers []Resolver
	cache     *lru.LRU[string, string]
	policy    BudgetPolicy
}

// New builds an Assembler trying resolvers in order for every ref.
func New(policy BudgetPolicy, resolvers ...Resolver) *Assembler {
	return &Assembler{
		resolvers: resolvers,
		cache:     lru.NewLRU[string, string](1024, nil, 15*time.Minute),
		policy:    policy,
	}
}

// Assemble resolves every ref in refs, skipping any that no resolver
// recognizes (recorded in Bundle.Unresolved rather than failing the
// whole bundle), and evaluates the aggregate token budget.
func (a *Assembler) Assemble(ctx context.Context, refs []string) (Bundle, error) {
	bundle := Bundle{Sections: make(map[string]string, len(refs))}

	for _, ref := range refs {
		content, ok, err := a.resolveOne(ctx, ref)
		if err != nil {
			return Bundle{}, err
		}
		if !ok {
			bundle.Unresolved = append(bundle.Unresolved, ref)
			continue
		}
		bundle.Sections[ref] = content
		bundle.TotalChars += len(content)
	}

	bundle.TotalTokens = EstimateTokens(bundle.TotalChars)
	bundle.BudgetStatus = EvaluateBudget(bundle.TotalChars, a.policy)
	return bundle, nil
}

func (a *Assembler) resolveOne(ctx context.Context, ref string) (string, bool, error) {
	if cached, ok := a.cache.Get(ref); ok {
		return cached, true, nil
	}
	for _, r := range a.resolvers {
		content, ok, err := r.Resolve(ctx, ref)
		if err != nil {
			return "", false, err
		}
		if ok {
			a.cache.Add(ref, content)
			return content, true, nil
		}
	}
	return "", false, nil
}
