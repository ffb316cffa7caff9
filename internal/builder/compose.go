package builder

import (
	"context"
	"path/filepath"

	"github.com/lapdev/wsagent/internal/api"
	"github.com/lapdev/wsagent/internal/compose"
	"github.com/lapdev/wsagent/internal/stream"
)

// BuildCompose builds one tagged image per compose service and returns
// the service manifest in document order.
func (b *Builder) BuildCompose(ctx context.Context, conductor stream.Conductor, info *api.RepoBuildInfo, composeFile, tag string) (api.RepoBuildOutput, error) {
	doc, err := compose.ParseFile(composeFile)
	if err != nil {
		return api.RepoBuildOutput{}, err
	}
	cwd := filepath.Dir(composeFile)

	var services []api.ComposeService
	for _, svc := range doc.Services {
		serviceTag := tag + ":" + svc.Name
		if err := b.buildComposeService(ctx, conductor, info, cwd, svc.Service, serviceTag); err != nil {
			return api.RepoBuildOutput{}, err
		}
		services = append(services, api.ComposeService{
			Name:  svc.Name,
			Image: serviceTag,
			Env:   svc.Service.Environment.Pairs(),
		})
	}
	return api.ComposeOutput(services), nil
}

// buildComposeService builds one service: from its build section when
// present, otherwise from its image reference.
func (b *Builder) buildComposeService(ctx context.Context, conductor stream.Conductor, info *api.RepoBuildInfo, cwd string, svc compose.Service, tag string) error {
	switch {
	case svc.Build != nil:
		return b.BuildFromDockerfile(ctx, conductor, info, cwd, *svc.Build, tag)
	case svc.Image != "":
		return b.BuildFromBase(ctx, conductor, info, cwd, svc.Image, tag)
	default:
		return api.RepositoryInvalidf("can't find image or build in this compose service")
	}
}
