package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/config"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/gallery"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/storage"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/vision"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Inspect and sync the known-face gallery",
}

var galleryScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Embed every reference image and list the resulting gallery",
	Args:  cobra.NoArgs,
	RunE:  runGalleryScan,
}

var gallerySyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Embed the reference images and replace the pgvector gallery",
	Long: `Scan the gallery source and replace the gallery_faces table used by the
pgvector match backend. Requires the postgres driver.`,
	Args: cobra.NoArgs,
	RunE: runGallerySync,
}

func init() {
	galleryCmd.PersistentFlags().Int("workers", 0, "Parallel embeddings (default vision.embed_workers)")
	galleryCmd.AddCommand(galleryScanCmd, gallerySyncCmd)
	rootCmd.AddCommand(galleryCmd)
}

// newProvider loads the face models. The returned func releases them.
func newProvider() (*vision.Provider, func(), error) {
	if err := vision.InitRuntime(cfg.Vision.ONNXRuntimeLib); err != nil {
		return nil, nil, err
	}
	p, err := vision.NewProvider(cfg.Vision)
	if err != nil {
		vision.DestroyRuntime()
		return nil, nil, err
	}
	return p, func() {
		p.Close()
		vision.DestroyRuntime()
	}, nil
}

func gallerySource() (gallery.Source, error) {
	var objects gallery.ObjectStore
	if cfg.Gallery.Source == config.GallerySourceMinIO {
		m, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			return nil, err
		}
		objects = m
	}
	return gallery.NewSource(cfg.Gallery, objects)
}

// scanGallery loads the gallery with a progress bar on stderr.
func scanGallery(cmd *cobra.Command, embedder vision.FaceEmbedder) (*gallery.Gallery, error) {
	ctx := cmd.Context()
	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = cfg.Vision.EmbedWorkers
	}

	src, err := gallerySource()
	if err != nil {
		return nil, err
	}

	files, err := src.List(ctx)
	if err != nil && !errors.Is(err, gallery.ErrSourceMissing) {
		return nil, fmt.Errorf("list %s: %w", src, err)
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("Embedding reference images"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
	defer func() { _ = bar.Finish() }()

	return gallery.Load(ctx, src, embedder, gallery.LoadOptions{
		Workers:  workers,
		Progress: func() { _ = bar.Add(1) },
	})
}

func runGalleryScan(cmd *cobra.Command, args []string) error {
	provider, release, err := newProvider()
	if err != nil {
		return err
	}
	defer release()

	g, err := scanGallery(cmd, provider)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ORDINAL\tNAME")
	for _, e := range g.Entries() {
		fmt.Fprintf(w, "%d\t%s\n", e.Ordinal, e.Name)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d known faces from %s\n", g.Len(), g.Source())
	return nil
}

func runGallerySync(cmd *cobra.Command, args []string) error {
	if cfg.Database.Driver != config.DriverPostgres {
		return fmt.Errorf("gallery sync needs the postgres driver, got %q", cfg.Database.Driver)
	}
	ctx := cmd.Context()

	pg, err := storage.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pg.Close()

	provider, release, err := newProvider()
	if err != nil {
		return err
	}
	defer release()

	g, err := scanGallery(cmd, provider)
	if err != nil {
		return err
	}
	if err := pg.ReplaceGalleryFaces(ctx, g.Entries()); err != nil {
		return err
	}

	n, err := pg.CountGalleryFaces(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "synced %d known faces to gallery_faces\n", n)
	return nil
}
