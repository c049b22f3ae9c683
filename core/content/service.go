package content

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	ut "github.com/go-playground/universal-translator"
	"github.com/pkg/errors"

	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/curriculum"
	"github.com/trezcool/kiongozi/core/simulation"
)

var errInvalidBundle = errors.New("invalid bundle")

// Report tells what an import did, or would do on a dry run.
// Entries are keyed "program:<slug>", "module:<program>/<slug>", "lesson:<program>/<slug>" and "case:<slug>".
type Report struct {
	DryRun    bool              `json:"dry_run"`
	Created   []string          `json:"created"`
	Updated   []string          `json:"updated"`
	Unchanged []string          `json:"unchanged"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func (r *Report) add(list *[]string, key string) { *list = append(*list, key) }

type Service struct {
	programs   curriculum.Repository
	cases      simulation.Repository
	validate   *validator.Validate
	translator ut.Translator
	logger     core.Logger
}

func NewService(programs curriculum.Repository, cases simulation.Repository, validate *validator.Validate, translator ut.Translator, logger core.Logger) *Service {
	return &Service{programs: programs, cases: cases, validate: validate, translator: translator, logger: logger}
}

// Import validates then upserts every node of b by slug.
// Nothing is written when a node is invalid or when dryRun is set.
func (svc *Service) Import(ctx context.Context, b Bundle, dryRun bool) (Report, error) {
	report := Report{DryRun: dryRun, Created: []string{}, Updated: []string{}, Unchanged: []string{}}
	clean(&b)

	if errs := svc.check(ctx, b); len(errs) > 0 {
		report.Errors = errs
		keys := make([]string, 0, len(errs))
		for k := range errs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		flds := make([]core.FieldError, 0, len(keys))
		for _, k := range keys {
			flds = append(flds, core.FieldError{Field: k, Error: errs[k]})
		}
		return report, core.NewValidationError(errInvalidBundle, flds...)
	}

	programIDs := make(map[string]string, len(b.Programs))
	for _, node := range b.Programs {
		id, err := svc.importProgram(ctx, node, dryRun, &report)
		if err != nil {
			return report, errors.Wrapf(err, "importing program %q", node.Slug)
		}
		programIDs[node.Slug] = id
	}
	for _, node := range b.Cases {
		if err := svc.importCase(ctx, node, programIDs, dryRun, &report); err != nil {
			return report, errors.Wrapf(err, "importing case %q", node.Slug)
		}
	}

	svc.logger.Info(fmt.Sprintf("content.Import: created=%d updated=%d unchanged=%d dry_run=%t",
		len(report.Created), len(report.Updated), len(report.Unchanged), dryRun))
	return report, nil
}

func clean(b *Bundle) {
	for i := range b.Programs {
		p := &b.Programs[i]
		p.Slug = core.CleanString(p.Slug, true /* lower */)
		p.Title = core.CleanString(p.Title)
		p.Summary = core.CleanString(p.Summary)
		p.Level = core.CleanString(p.Level, true /* lower */)
		for j := range p.Modules {
			m := &p.Modules[j]
			m.Slug = core.CleanString(m.Slug, true /* lower */)
			m.Title = core.CleanString(m.Title)
			for k := range m.Lessons {
				l := &m.Lessons[k]
				l.Slug = core.CleanString(l.Slug, true /* lower */)
				l.Title = core.CleanString(l.Title)
				l.Kind = core.CleanString(l.Kind, true /* lower */)
				l.VideoURL = core.CleanString(l.VideoURL)
				l.Case = core.CleanString(l.Case, true /* lower */)
			}
		}
	}
	for i := range b.Cases {
		c := &b.Cases[i]
		c.Slug = core.CleanString(c.Slug, true /* lower */)
		c.Title = core.CleanString(c.Title)
		c.Brief = core.CleanString(c.Brief)
		c.Program = core.CleanString(c.Program, true /* lower */)
	}
}

// check returns the errors of b keyed by node path, e.g. "programs[0].modules[1].slug".
func (svc *Service) check(ctx context.Context, b Bundle) map[string]string {
	errs := make(map[string]string)
	if err := svc.validate.Struct(b); err != nil {
		vErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			errs["bundle"] = err.Error()
			return errs
		}
		for _, vErr := range vErrs {
			path := vErr.Namespace()
			if i := strings.Index(path, "."); i >= 0 {
				path = path[i+1:]
			}
			errs[path] = vErr.Translate(svc.translator)
		}
	}

	bundleCases := make(map[string]bool, len(b.Cases))
	for i, c := range b.Cases {
		if bundleCases[c.Slug] {
			errs[fmt.Sprintf("cases[%d].slug", i)] = "duplicate slug"
		}
		bundleCases[c.Slug] = true
		checkCase(c, fmt.Sprintf("cases[%d]", i), errs)
	}

	bundlePrograms := make(map[string]bool, len(b.Programs))
	for i, p := range b.Programs {
		pPath := fmt.Sprintf("programs[%d]", i)
		if bundlePrograms[p.Slug] {
			errs[pPath+".slug"] = "duplicate slug"
		}
		bundlePrograms[p.Slug] = true

		modules := make(map[string]bool, len(p.Modules))
		lessons := make(map[string]bool)
		for j, m := range p.Modules {
			mPath := fmt.Sprintf("%s.modules[%d]", pPath, j)
			if modules[m.Slug] {
				errs[mPath+".slug"] = "duplicate slug"
			}
			modules[m.Slug] = true

			for k, l := range m.Lessons {
				lPath := fmt.Sprintf("%s.lessons[%d]", mPath, k)
				if lessons[l.Slug] {
					errs[lPath+".slug"] = "duplicate slug in program"
				}
				lessons[l.Slug] = true

				switch l.Kind {
				case curriculum.KindVideo:
					if l.VideoURL == "" {
						errs[lPath+".video_url"] = "video lessons need a video_url"
					}
				case curriculum.KindCase:
					if l.Case == "" {
						errs[lPath+".case"] = "case lessons need a case"
					} else if !bundleCases[l.Case] && !svc.caseExists(ctx, l.Case) {
						errs[lPath+".case"] = fmt.Sprintf("unknown case %q", l.Case)
					}
				case curriculum.KindReading:
					if strings.TrimSpace(l.Body) == "" {
						errs[lPath+".body"] = "reading lessons need a body"
					}
				}
			}
		}
	}

	for i, c := range b.Cases {
		if c.Program != "" && !bundlePrograms[c.Program] && !svc.programExists(ctx, c.Program) {
			errs[fmt.Sprintf("cases[%d].program", i)] = fmt.Sprintf("unknown program %q", c.Program)
		}
	}
	return errs
}

func checkCase(c CaseNode, path string, errs map[string]string) {
	metrics := make(map[string]bool, len(c.Metrics))
	for i, m := range c.Metrics {
		if metrics[m.Key] {
			errs[fmt.Sprintf("%s.metrics[%d].key", path, i)] = "duplicate key"
		}
		metrics[m.Key] = true
	}
	decisions := make(map[string]bool, len(c.Decisions))
	for i, d := range c.Decisions {
		dPath := fmt.Sprintf("%s.decisions[%d]", path, i)
		if decisions[d.Key] {
			errs[dPath+".key"] = "duplicate key"
		}
		decisions[d.Key] = true

		options := make(map[string]bool, len(d.Options))
		for j, o := range d.Options {
			oPath := fmt.Sprintf("%s.options[%d]", dPath, j)
			if options[o.Key] {
				errs[oPath+".key"] = "duplicate key"
			}
			options[o.Key] = true
			for metric := range o.Impact {
				if !metrics[metric] {
					errs[oPath+".impact"] = fmt.Sprintf("unknown metric %q", metric)
				}
			}
		}
	}
}

func (svc *Service) caseExists(ctx context.Context, slug string) bool {
	_, err := svc.cases.GetCaseBySlug(ctx, slug)
	return err == nil
}

func (svc *Service) programExists(ctx context.Context, slug string) bool {
	_, err := svc.programs.GetProgram(ctx, curriculum.ProgramGetFilter{Slug: slug})
	return err == nil
}

func (svc *Service) importProgram(ctx context.Context, node ProgramNode, dryRun bool, report *Report) (string, error) {
	key := "program:" + node.Slug
	now := time.Now().UTC()

	p, err := svc.programs.GetProgram(ctx, curriculum.ProgramGetFilter{Slug: node.Slug})
	isNew := false
	switch {
	case err == nil:
	case core.IsNotFound(err):
		isNew = true
		p = curriculum.Program{Slug: node.Slug, CreatedAt: now}
	default:
		return "", err
	}

	next := p
	next.Title = node.Title
	next.Summary = node.Summary
	next.Level = node.Level
	next.IsPremium = node.Premium
	next.IsFeatured = node.Featured
	next.Position = node.Position

	switch {
	case isNew:
		report.add(&report.Created, key)
	case next != p:
		report.add(&report.Updated, key)
	default:
		report.add(&report.Unchanged, key)
	}
	if !dryRun && next != p {
		next.UpdatedAt = now
		if p, err = svc.programs.SaveProgram(ctx, next); err != nil {
			return "", err
		}
	}

	var existingModules []curriculum.Module
	var existingLessons []curriculum.Lesson
	if p.ID != "" {
		if existingModules, err = svc.programs.QueryModules(ctx, p.ID); err != nil {
			return "", err
		}
		if existingLessons, err = svc.programs.QueryLessons(ctx, p.ID); err != nil {
			return "", err
		}
	}
	modules := make(map[string]curriculum.Module, len(existingModules))
	for _, m := range existingModules {
		modules[m.Slug] = m
	}
	lessons := make(map[string]curriculum.Lesson, len(existingLessons))
	for _, l := range existingLessons {
		lessons[l.Slug] = l
	}

	for i, mNode := range node.Modules {
		mKey := "module:" + node.Slug + "/" + mNode.Slug
		m, ok := modules[mNode.Slug]
		next := curriculum.Module{ID: m.ID, ProgramID: p.ID, Slug: mNode.Slug, Title: mNode.Title, Position: i}
		switch {
		case !ok:
			report.add(&report.Created, mKey)
		case next != m:
			report.add(&report.Updated, mKey)
		default:
			report.add(&report.Unchanged, mKey)
		}
		if !dryRun && next != m {
			if m, err = svc.programs.SaveModule(ctx, next); err != nil {
				return "", err
			}
		}

		for j, lNode := range mNode.Lessons {
			if err = svc.importLesson(ctx, p, m, node.Slug, j, lNode, lessons, dryRun, report); err != nil {
				return "", err
			}
		}
	}
	return p.ID, nil
}

func (svc *Service) importLesson(
	ctx context.Context, p curriculum.Program, m curriculum.Module, programSlug string, position int,
	node LessonNode, existing map[string]curriculum.Lesson, dryRun bool, report *Report,
) error {
	key := "lesson:" + programSlug + "/" + node.Slug
	hash := lessonHash(m.Slug, position, node)

	l, ok := existing[node.Slug]
	switch {
	case !ok:
		report.add(&report.Created, key)
	case l.ContentHash == hash && l.ModuleID == m.ID:
		report.add(&report.Unchanged, key)
		return nil
	default:
		report.add(&report.Updated, key)
	}
	if dryRun {
		return nil
	}

	html, err := RenderMarkdown(node.Body)
	if err != nil {
		return errors.Wrapf(err, "rendering lesson %q", node.Slug)
	}
	now := time.Now().UTC()
	if !ok {
		l.CreatedAt = now
	}
	l.ProgramID = p.ID
	l.ModuleID = m.ID
	l.Slug = node.Slug
	l.Title = node.Title
	l.Kind = node.Kind
	l.Body = node.Body
	l.BodyHTML = html
	l.VideoURL = node.VideoURL
	l.CaseSlug = node.Case
	l.EstimatedMinutes = node.Minutes
	l.Position = position
	l.ContentHash = hash
	l.UpdatedAt = now
	_, err = svc.programs.SaveLesson(ctx, l)
	return err
}

type caseContent struct {
	Title     string
	Brief     string
	ProgramID string
	Metrics   []simulation.Metric
	Decisions []simulation.DecisionPoint
}

func contentOf(c simulation.Case) ([]byte, error) {
	return json.Marshal(caseContent{c.Title, c.Brief, c.ProgramID, c.Metrics, c.Decisions})
}

func (svc *Service) importCase(ctx context.Context, node CaseNode, programIDs map[string]string, dryRun bool, report *Report) error {
	key := "case:" + node.Slug
	now := time.Now().UTC()

	programID := ""
	if node.Program != "" {
		if id, ok := programIDs[node.Program]; ok {
			programID = id
		} else if p, err := svc.programs.GetProgram(ctx, curriculum.ProgramGetFilter{Slug: node.Program}); err == nil {
			programID = p.ID
		}
	}

	c, err := svc.cases.GetCaseBySlug(ctx, node.Slug)
	isNew := false
	switch {
	case err == nil:
	case core.IsNotFound(err):
		isNew = true
		c = simulation.Case{Slug: node.Slug, CreatedAt: now}
	default:
		return err
	}

	before, err := contentOf(c)
	if err != nil {
		return err
	}
	c.Title = node.Title
	c.Brief = node.Brief
	c.ProgramID = programID
	c.Metrics = node.Metrics
	c.Decisions = node.Decisions
	after, err := contentOf(c)
	if err != nil {
		return err
	}

	changed := string(before) != string(after)
	switch {
	case isNew:
		report.add(&report.Created, key)
	case changed:
		report.add(&report.Updated, key)
	default:
		report.add(&report.Unchanged, key)
		return nil
	}
	if dryRun {
		return nil
	}
	c.UpdatedAt = now
	_, err = svc.cases.SaveCase(ctx, c)
	return err
}

// PublishProgram publishes or unpublishes a program.
func (svc *Service) PublishProgram(ctx context.Context, slug string, publish bool) (curriculum.Program, error) {
	p, err := svc.programs.GetProgram(ctx, curriculum.ProgramGetFilter{Slug: core.CleanString(slug, true /* lower */)})
	if err != nil {
		return curriculum.Program{}, err
	}
	if p.IsPublished == publish {
		return p, nil
	}
	p.IsPublished = publish
	p.UpdatedAt = time.Now().UTC()
	return svc.programs.SaveProgram(ctx, p)
}

// PublishCase publishes or unpublishes a case.
func (svc *Service) PublishCase(ctx context.Context, slug string, publish bool) (simulation.Case, error) {
	c, err := svc.cases.GetCaseBySlug(ctx, core.CleanString(slug, true /* lower */))
	if err != nil {
		return simulation.Case{}, err
	}
	if c.IsPublished == publish {
		return c, nil
	}
	c.IsPublished = publish
	c.UpdatedAt = time.Now().UTC()
	return svc.cases.SaveCase(ctx, c)
}
