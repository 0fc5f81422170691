// Package projects builds the name to identifier map of projects on a target site.
package projects

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/temirov/tabmigrate/internal/content"
	"github.com/temirov/tabmigrate/internal/pagination"
)

const (
	missingListerMessageConstant      = "project lister not configured"
	collisionLogMessageConstant       = "duplicate project name ignored"
	mapBuiltLogMessageConstant        = "project map built"
	logFieldProjectConstant           = "project"
	logFieldKeptIdentifierConstant    = "kept_identifier"
	logFieldIgnoredIdentifierConstant = "ignored_identifier"
	logFieldProjectCountConstant      = "projects"
	logFieldCollisionCountConstant    = "collisions"
)

// ErrListerNotConfigured indicates a nil ProjectLister was supplied.
var ErrListerNotConfigured = errors.New(missingListerMessageConstant)

// ProjectLister returns one page of projects.
type ProjectLister interface {
	ListProjects(executionContext context.Context, page pagination.PageRequest) ([]content.Project, error)
}

// Collision records a project name seen more than once.
type Collision struct {
	Name              string
	KeptIdentifier    string
	IgnoredIdentifier string
}

// ProjectMap maps project display names to identifiers. The first project listed under a name wins.
type ProjectMap struct {
	identifiers map[string]string
	collisions  []Collision
}

// Lookup returns the identifier mapped to name.
func (projectMap ProjectMap) Lookup(name string) (string, bool) {
	identifier, found := projectMap.identifiers[name]
	return identifier, found
}

// Len returns the number of distinct project names.
func (projectMap ProjectMap) Len() int {
	return len(projectMap.identifiers)
}

// Collisions returns the duplicate names encountered while building the map, in listing order.
func (projectMap ProjectMap) Collisions() []Collision {
	return append([]Collision(nil), projectMap.collisions...)
}

// Resolver enumerates projects and builds a ProjectMap.
type Resolver struct {
	logger   *zap.Logger
	pageSize int
}

// NewResolver constructs a Resolver.
func NewResolver(logger *zap.Logger, pageSize int) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger, pageSize: pageSize}
}

// Build lists every project and maps names to identifiers, logging a warning for each repeated name.
func (resolver *Resolver) Build(executionContext context.Context, lister ProjectLister) (ProjectMap, error) {
	if lister == nil {
		return ProjectMap{}, ErrListerNotConfigured
	}

	projectMap := ProjectMap{identifiers: map[string]string{}}
	listing := pagination.Items(executionContext, resolver.pageSize, lister.ListProjects)
	for project, listError := range listing {
		if listError != nil {
			return ProjectMap{}, listError
		}

		keptIdentifier, seen := projectMap.identifiers[project.Name]
		if !seen {
			projectMap.identifiers[project.Name] = project.ID
			continue
		}

		collision := Collision{Name: project.Name, KeptIdentifier: keptIdentifier, IgnoredIdentifier: project.ID}
		projectMap.collisions = append(projectMap.collisions, collision)
		resolver.logger.Warn(
			collisionLogMessageConstant,
			zap.String(logFieldProjectConstant, collision.Name),
			zap.String(logFieldKeptIdentifierConstant, collision.KeptIdentifier),
			zap.String(logFieldIgnoredIdentifierConstant, collision.IgnoredIdentifier),
		)
	}

	resolver.logger.Debug(
		mapBuiltLogMessageConstant,
		zap.Int(logFieldProjectCountConstant, projectMap.Len()),
		zap.Int(logFieldCollisionCountConstant, len(projectMap.collisions)),
	)
	return projectMap, nil
}
