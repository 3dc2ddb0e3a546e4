package provider

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/rs/zerolog/log"
)

// BuildImage builds the image for a service from its build context
// directory. The build context must contain the build instructions
// (Dockerfile); a missing or invalid context is fatal for the service.
func (e *Engine) BuildImage(ctx context.Context, contextDir, image string) error {
	buildContext, err := tarBuildContext(contextDir)
	if err != nil {
		return fmt.Errorf("tar build context %q: %w", contextDir, err)
	}

	resp, err := e.client.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:       []string{image},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("build image %q: %w", image, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return drainBuildOutput(resp.Body, image)
}

// buildMessage is the engine build output stream framing.
type buildMessage struct {
	Stream      string `json:"stream"`
	Error       string `json:"error"`
	ErrorDetail struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

func drainBuildOutput(r io.Reader, image string) error {
	dec := json.NewDecoder(r)

	for {
		var msg buildMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode build output: %w", err)
		}

		if msg.Error != "" {
			detail := msg.ErrorDetail.Message
			if detail == "" {
				detail = msg.Error
			}
			return fmt.Errorf("build image %q: %s", image, detail)
		}

		if line := strings.TrimSpace(msg.Stream); line != "" {
			log.Debug().Str("image", image).Msg(line)
		}
	}
}

func tarBuildContext(dir string) (io.Reader, error) {
	buf := new(bytes.Buffer)
	tw := tar.NewWriter(buf)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(info, rel)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)

		if err = tw.WriteHeader(header); err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()

		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err = tw.Close(); err != nil {
		return nil, err
	}

	return bytes.NewReader(buf.Bytes()), nil
}
