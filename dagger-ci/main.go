// Сборка и публикация образов AIPress.
//
// Модуль собирает сервис cmd/aipress и утилиту cmd/aipress-md под linux/amd64 и linux/arm64,
// прогоняет тесты и публикует мультиплатформенный образ в реестр.
package main

import (
	"context"
	"dagger/aipress/internal/dagger"
	"fmt"
)

type Aipress struct{}

func (m *Aipress) GoBuildEnv(source *dagger.Directory) *dagger.Container {
	goCache := dag.CacheVolume("go")
	return dag.Container().
		From("golang:alpine").
		WithDirectory("/src", source).
		WithWorkdir("/src").
		WithEnvVariable("GOOS", "linux").
		WithEnvVariable("CGO_ENABLED", "0").
		WithMountedCache("/go/pkg/mod", goCache).
		WithExec([]string{"go", "mod", "tidy"})
}

// Test прогоняет тесты всех пакетов.
func (m *Aipress) Test(ctx context.Context, source *dagger.Directory) (string, error) {
	return m.GoBuildEnv(source).
		WithExec([]string{"go", "test", "./..."}).
		Stdout(ctx)
}

func (m *Aipress) BackEnv(platform dagger.Platform, appBin *dagger.File, mdBin *dagger.File) *dagger.Container {
	return dag.Container(dagger.ContainerOpts{
		Platform: platform,
	}).
		From("alpine").
		WithEnvVariable("TZ", "Europe/Moscow").
		WithExec([]string{"apk", "add", "--no-cache", "tzdata"}).
		WithWorkdir("/app").
		WithFile("/app/app", appBin).
		WithFile("/usr/local/bin/aipress-md", mdBin).
		WithEnvVariable("MEDIA_PATH", "/app/media").
		WithEntrypoint([]string{"/app/app"})
}

func (m *Aipress) Build(version string, source *dagger.Directory) []*dagger.Container {
	buildMatrix := []struct {
		Arch     string
		Suffix   string
		Platform dagger.Platform
	}{
		{
			Arch:     "amd64",
			Suffix:   "linux",
			Platform: dagger.Platform("linux/amd64"),
		},
		{
			Arch:     "arm64",
			Suffix:   "linux-arm64",
			Platform: dagger.Platform("linux/arm64/v8"),
		},
	}

	ldflags := fmt.Sprintf("-s -w -X main.version=%s", version)
	var images []*dagger.Container
	for _, buildParam := range buildMatrix {
		appBin := "/build/aipress-" + buildParam.Suffix
		mdBin := "/build/aipress-md-" + buildParam.Suffix
		builder := m.GoBuildEnv(source).
			WithEnvVariable("GOARCH", buildParam.Arch).
			WithExec([]string{"go", "build", "-o", appBin, "-ldflags", ldflags, "./cmd/aipress"}).
			WithExec([]string{"go", "build", "-o", mdBin, "-ldflags", "-s -w", "./cmd/aipress-md"})

		image := m.BackEnv(
			buildParam.Platform,
			builder.File(appBin),
			builder.File(mdBin),
		).
			WithLabel("org.opencontainers.image.source", "https://github.com/aisa-it/aipress").
			WithAnnotation("org.opencontainers.image.source", "https://github.com/aisa-it/aipress")
		images = append(images, image)
	}
	return images
}

func (m *Aipress) Publish(
	ctx context.Context,
	images []*dagger.Container,
	registrySecret *dagger.Secret,
	registryUser string,
	imageName string,
) (string, error) {
	return dag.Container().
		WithRegistryAuth("ghcr.io", registryUser, registrySecret).
		Publish(ctx, "ghcr.io/"+imageName, dagger.ContainerPublishOpts{PlatformVariants: images})
}

func (m *Aipress) Export(
	ctx context.Context,
	images []*dagger.Container,
	imageName string,
) (string, error) {
	return dag.Container().
		Export(ctx, imageName, dagger.ContainerExportOpts{PlatformVariants: images})
}

func (m *Aipress) BuildLocal(ctx context.Context, name string, source *dagger.Directory) (string, error) {
	return m.Export(ctx, m.Build("v0.1.0", source), name)
}

func (m *Aipress) BuildApp(ctx context.Context, version string, source *dagger.Directory,
	registrySecret *dagger.Secret,
	registryUser string,
	imageName string,
) error {
	if _, err := m.Test(ctx, source); err != nil {
		return err
	}
	images := m.Build(version, source)

	for _, tag := range []string{version, "latest"} {
		ref, err := m.Publish(ctx, images, registrySecret, registryUser, fmt.Sprintf("%s:%s", imageName, tag))
		if err != nil {
			return err
		}
		fmt.Println(ref)
	}
	return nil
}
