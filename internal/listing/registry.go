// Package listing is the static registry of concrete listings. A listing kind
// is resolved only through this allow-list; client input never names a type
// or table directly.
package listing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/datatable/internal/customfield"
	"github.com/alfredjeanlab/datatable/internal/datatable"
	"github.com/alfredjeanlab/datatable/internal/model"
)

// DefaultCapability is required to view a listing unless configured otherwise.
const DefaultCapability = "datatable:view"

// ErrInvalidParam is wrapped when a listing parameter is missing or malformed.
var ErrInvalidParam = errors.New("invalid listing parameter")

// Catalog supplies the lookups listings need at construction.
type Catalog interface {
	CustomFields(ctx context.Context, contextLevel string) ([]model.CustomField, error)
	Programs(ctx context.Context) ([]model.Choice, error)
	// ProgramCourses maps program ids to the courses they contain.
	ProgramCourses(ctx context.Context) (map[string][]model.Choice, error)
}

// Env carries what listing constructors depend on.
type Env struct {
	Catalog  Catalog
	Location *time.Location
}

func (e Env) loc() *time.Location {
	if e.Location == nil {
		return time.UTC
	}
	return e.Location
}

// customFields loads the custom fields of level attached to instanceExpr.
func (e Env) customFields(ctx context.Context, level, instanceExpr string) (*customfield.Adapter, error) {
	fields, err := e.Catalog.CustomFields(ctx, level)
	if err != nil {
		return nil, fmt.Errorf("load %s custom fields: %w", level, err)
	}
	return customfield.New(fields, instanceExpr, e.loc()), nil
}

// Params are the identifying request parameters of a listing.
type Params map[string]string

// ID returns the positive integer parameter name.
func (p Params) ID(name string) (int64, error) {
	v := strings.TrimSpace(p[name])
	if v == "" {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidParam, name)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", ErrInvalidParam, name)
	}
	return id, nil
}

type builder func(ctx context.Context, env Env, p Params) (datatable.Listing, error)

type entry struct {
	build builder
	// level selects custom fields and visibility configuration.
	level string
	// scope is the level of the context grants are checked against and
	// param the parameter carrying its id. System-wide listings have no param.
	scope      string
	param      string
	capability string
}

var registry = map[string]entry{
	"programs":           {build: programs, level: LevelProgram, scope: LevelSystem},
	"program_courses":    {build: programCourses, level: LevelCourse, scope: LevelProgram, param: "programid"},
	"courseset_courses":  {build: coursesetCourses, level: LevelCourse, scope: LevelCourseset, param: "coursesetid"},
	"program_coursesets": {build: programCoursesets, level: LevelCourseset, scope: LevelProgram, param: "programid"},
	"program_tracks":     {build: programTracks, level: LevelTrack, scope: LevelProgram, param: "programid"},
	"course_classes":     {build: courseClasses, level: LevelClass, scope: LevelCourse, param: "courseid"},
	"users":              {build: users, level: LevelUser, scope: LevelSystem},
	"user_classes":       {build: userClasses, level: LevelClass, scope: LevelUser, param: "userid", capability: "datatable:viewuser"},
}

// Scope is what a request for a listing must be authorized against: the
// capability, held globally or in the context Level:ID.
type Scope struct {
	Capability string
	Level      string
	ID         int64
	// ContextLevel selects custom fields and visibility configuration.
	ContextLevel string
}

// ScopeOf resolves the scope of a request for kind from its parameters
// alone. It reads nothing from the catalog.
func ScopeOf(kind string, p Params) (Scope, error) {
	e, ok := registry[kind]
	if !ok {
		return Scope{}, fmt.Errorf("%w: %q", datatable.ErrUnknownListing, kind)
	}
	sc := Scope{Capability: e.capability, Level: e.scope, ContextLevel: e.level}
	if sc.Capability == "" {
		sc.Capability = DefaultCapability
	}
	if e.param != "" {
		id, err := p.ID(e.param)
		if err != nil {
			return Scope{}, err
		}
		sc.ID = id
	}
	return sc, nil
}

// Kinds returns the registered listing kinds, sorted.
func Kinds() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Known reports whether kind is registered.
func Known(kind string) bool {
	_, ok := registry[kind]
	return ok
}

// Build constructs the listing registered under kind.
func Build(ctx context.Context, kind string, env Env, p Params) (datatable.Listing, error) {
	sc, err := ScopeOf(kind, p)
	if err != nil {
		return datatable.Listing{}, err
	}
	def, err := registry[kind].build(ctx, env, p)
	if err != nil {
		return datatable.Listing{}, err
	}
	def.Kind = kind
	def.Capability = sc.Capability
	def.ContextLevel = sc.ContextLevel
	def.ContextID = sc.ID
	return def, nil
}
