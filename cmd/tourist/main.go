package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"tourist-go/internal/app"
	"tourist-go/internal/config"
	"tourist-go/internal/encryption"
	"tourist-go/internal/model"
	"tourist-go/internal/tourist"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a TouristApp. The caller must close it
// with closeApp so snapshot upload errors are reported.
// operation identifies the CLI command being run (e.g. "DropPin", "RefreshPhotos").
func newApp(ctx context.Context, operation string) (*app.TouristApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewTouristApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// closeApp closes a and keeps the first error in *errp.
func closeApp(a *app.TouristApp, errp *error) {
	if err := a.Close(); err != nil && *errp == nil {
		*errp = fmt.Errorf("closing: %w", err)
	}
}

// readPassphrase prompts on stderr. Input is hidden when stdin is a terminal.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var rootCmd = &cobra.Command{
	Use:          "tourist",
	Short:        "Pins on a map with Flickr photos",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and encryption keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		apiKey, _ := cmd.Flags().GetString("api-key")
		skipKeys, _ := cmd.Flags().GetBool("skip-keys")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])
		cfg.Flickr.APIKey = apiKey

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])

		if skipKeys {
			return nil
		}
		enc, err := encryption.NewEncryptorFromConfig(afero.NewOsFs(), cfg.Encryption)
		if err != nil {
			return fmt.Errorf("creating encryptor: %w", err)
		}
		if enc.IsConfigured() {
			fmt.Println("Encryption keys already exist.")
			return nil
		}

		passphrase, err := readPassphrase("Snapshot passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return fmt.Errorf("passphrases do not match")
		}
		if err := enc.Setup(passphrase); err != nil {
			return fmt.Errorf("setting up encryption: %w", err)
		}
		fmt.Printf("Encryption keys written to %s\n", cfg.Encryption.PublicKeyPath)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Host ID:     %s\n", cfg.HostID)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Log Level:   %s\n", cfg.LogLevel)
		fmt.Printf("Database:    %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Flickr:      %s (%d per page, %.2f km)\n", cfg.Flickr.Endpoint, cfg.Flickr.PerPage, cfg.Flickr.Radius)
		fmt.Printf("Image Size:  %s\n", cfg.Images.Size)
		fmt.Printf("Preferences: %s\n", cfg.Preferences.Path)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:       %s (%s)\n", v.Name, v.Type)
		}
		return nil
	},
}

var configVaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage vault",
}

var configVaultCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the snapshot vault is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		if err := app.ValidateVault(cmd.Context(), cfg); err != nil {
			return err
		}
		fmt.Printf("Vault %s is reachable\n", cfg.Vaults[0].Name)
		return nil
	},
}

// pin command
var pinCmd = &cobra.Command{
	Use:   "pin",
	Short: "Manage pins",
}

var pinAddCmd = &cobra.Command{
	Use:   "add --lat LAT --lon LON",
	Short: "Drop a pin and fetch its first page of photos",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		lat, _ := cmd.Flags().GetFloat64("lat")
		lon, _ := cmd.Flags().GetFloat64("lon")
		name, _ := cmd.Flags().GetString("name")
		noFetch, _ := cmd.Flags().GetBool("no-fetch")

		operation := "DropPin"
		if noFetch {
			operation = "AddPin"
		}
		a, err := newApp(cmd.Context(), operation)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		var pin *model.Pin
		if noFetch {
			pin, err = a.AddPin(cmd.Context(), lat, lon, name)
		} else {
			pin, err = a.DropPin(cmd.Context(), lat, lon, name)
		}
		if pin != nil {
			fmt.Printf("Pin %s at %.5f, %.5f\n", pin.ID, pin.Latitude, pin.Longitude)
		}
		if err != nil {
			return fmt.Errorf("adding pin: %w", err)
		}
		if !noFetch {
			fmt.Printf("Fetched page %d of %d\n", pin.Page, pin.Pages)
		}
		return nil
	},
}

var pinListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pins, newest first",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd.Context(), "ListPins")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		pins, err := a.Pins(cmd.Context())
		if err != nil {
			return err
		}
		if len(pins) == 0 {
			fmt.Println("No pins.")
			return nil
		}
		for _, p := range pins {
			fmt.Printf("%s  %10.5f  %11.5f  page %d/%d  %s\n",
				p.ID, p.Latitude, p.Longitude, p.Page, p.Pages, p.Name)
		}
		return nil
	},
}

var pinDeleteCmd = &cobra.Command{
	Use:   "delete PIN",
	Short: "Delete a pin and its photos",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd.Context(), "DeletePin")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if err := a.DeletePin(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("deleting pin: %w", err)
		}
		fmt.Printf("Deleted pin %s\n", args[0])
		return nil
	},
}

// photos command
var photosCmd = &cobra.Command{
	Use:   "photos",
	Short: "Browse and manage the photos of a pin",
}

func printPhotos(photos []*model.Photo) {
	if len(photos) == 0 {
		fmt.Println("No photos.")
		return
	}
	for i, p := range photos {
		state := "placeholder"
		if p.Hydrated() {
			state = fmt.Sprintf("%d bytes", len(p.ImageBytes))
		}
		fmt.Printf("%3d  %s  %-12s  %s\n", i, p.ID, state, p.RemoteImageURL)
	}
}

var photosListCmd = &cobra.Command{
	Use:   "list PIN",
	Short: "List the photos of a pin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd.Context(), "ListPhotos")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		photos, err := a.Photos(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printPhotos(photos)
		return nil
	},
}

var photosRefreshCmd = &cobra.Command{
	Use:   "refresh PIN",
	Short: "Replace the photos of a pin with a new collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd.Context(), "RefreshPhotos")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		photos, err := a.RefreshPhotos(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("refreshing photos: %w", err)
		}
		printPhotos(photos)
		return nil
	},
}

var photosHydrateCmd = &cobra.Command{
	Use:   "hydrate PIN",
	Short: "Download every photo image of a pin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd.Context(), "HydratePhotos")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		items, err := a.HydratePhotos(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("hydrating photos: %w", err)
		}

		failed := 0
		for i, it := range items {
			line := fmt.Sprintf("%3d  %s  %s", i, it.Photo.ID, it.State)
			if it.State == tourist.PhotoFailed {
				failed++
				line += "  " + it.Err.Error()
			}
			fmt.Println(line)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d photo(s) failed to download", failed, len(items))
		}
		return nil
	},
}

var photosDeleteCmd = &cobra.Command{
	Use:   "delete PHOTO",
	Short: "Delete a photo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd.Context(), "DeletePhoto")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if err := a.DeletePhoto(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("deleting photo: %w", err)
		}
		fmt.Printf("Deleted photo %s\n", args[0])
		return nil
	},
}

var photosExportCmd = &cobra.Command{
	Use:   "export PIN DIR",
	Short: "Write downloaded photo images to a directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd.Context(), "ExportPhotos")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		n, err := a.ExportPhotos(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("exporting photos: %w", err)
		}
		fmt.Printf("Exported %d photo(s) to %s\n", n, args[1])
		return nil
	},
}

// region command
var regionCmd = &cobra.Command{
	Use:   "region",
	Short: "Show or save the last map region",
}

var regionGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the saved map region",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd.Context(), "GetRegion")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		r, ok, err := a.Region()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("No region saved.")
			return nil
		}
		fmt.Printf("center %.5f, %.5f  span %.5f x %.5f\n", r.Latitude, r.Longitude, r.LatitudeDelta, r.LongitudeDelta)
		return nil
	},
}

var regionSetCmd = &cobra.Command{
	Use:   "set --lat LAT --lon LON --lat-delta D --lon-delta D",
	Short: "Save the map region",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var r model.Region
		r.Latitude, _ = cmd.Flags().GetFloat64("lat")
		r.Longitude, _ = cmd.Flags().GetFloat64("lon")
		r.LatitudeDelta, _ = cmd.Flags().GetFloat64("lat-delta")
		r.LongitudeDelta, _ = cmd.Flags().GetFloat64("lon-delta")

		a, err := newApp(cmd.Context(), "SetRegion")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if err := a.SetRegion(r); err != nil {
			return fmt.Errorf("saving region: %w", err)
		}
		fmt.Println("Region saved.")
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "GetHistory")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		ops, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				d := op.FinishedAt.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-15s  %s  %-10s  %-8s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the local database with the latest vault snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		cfg, err := readConfig()
		if err != nil {
			return err
		}
		passphrase, err := readPassphrase("Snapshot passphrase: ")
		if err != nil {
			return err
		}

		version, err := app.Restore(cmd.Context(), cfg, passphrase, force)
		if err != nil {
			return fmt.Errorf("restoring: %w", err)
		}
		fmt.Printf("Restored database at operation #%d\n", version)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("api-key", "", "Flickr API key")
	configInitCmd.MarkFlagRequired("api-key")
	configInitCmd.Flags().Bool("skip-keys", false, "Do not generate snapshot encryption keys")
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configVaultCmd)
	configVaultCmd.AddCommand(configVaultCheckCmd)

	// pin subcommands
	pinCmd.AddCommand(pinAddCmd)
	pinAddCmd.Flags().Float64("lat", 0, "Latitude in degrees")
	pinAddCmd.Flags().Float64("lon", 0, "Longitude in degrees")
	pinAddCmd.Flags().String("name", "", "Display name")
	pinAddCmd.Flags().Bool("no-fetch", false, "Save the pin without fetching photos")
	pinAddCmd.MarkFlagRequired("lat")
	pinAddCmd.MarkFlagRequired("lon")
	pinCmd.AddCommand(pinListCmd)
	pinCmd.AddCommand(pinDeleteCmd)

	// photos subcommands
	photosCmd.AddCommand(photosListCmd)
	photosCmd.AddCommand(photosRefreshCmd)
	photosCmd.AddCommand(photosHydrateCmd)
	photosCmd.AddCommand(photosDeleteCmd)
	photosCmd.AddCommand(photosExportCmd)

	// region subcommands
	regionCmd.AddCommand(regionGetCmd)
	regionCmd.AddCommand(regionSetCmd)
	regionSetCmd.Flags().Float64("lat", 0, "Center latitude")
	regionSetCmd.Flags().Float64("lon", 0, "Center longitude")
	regionSetCmd.Flags().Float64("lat-delta", 0, "Latitude span")
	regionSetCmd.Flags().Float64("lon-delta", 0, "Longitude span")
	regionSetCmd.MarkFlagRequired("lat")
	regionSetCmd.MarkFlagRequired("lon")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(pinCmd)
	rootCmd.AddCommand(photosCmd)
	rootCmd.AddCommand(regionCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().Bool("force", false, "Replace an existing local database")
}
