package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/nca-cli/internal/config"
	"github.com/KaramelBytes/nca-cli/internal/report"
	"github.com/KaramelBytes/nca-cli/internal/study"
	"github.com/KaramelBytes/nca-cli/internal/utils"
)

var (
	studyDescription string
	studyName        string
	studyAddIn       inputFlags
	studyAddDesc     string

	studyRunStart    float64
	studyRunEnd      float64
	studyRunTerminal string
	studyRunStats    string
	studyRunFormat   string
	studyRunStrict   bool
)

var studyCmd = &cobra.Command{
	Use:   "study",
	Short: "Manage study workspaces of datasets and NCA runs",
}

var studyInitCmd = &cobra.Command{
	Use:   "init <study-name>",
	Short: "Initialize a new study",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		root, err := studiesDir()
		if err != nil {
			return err
		}
		dir := filepath.Join(root, name)
		// Refuse to overwrite an existing study.
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			entries, err := os.ReadDir(dir)
			if err != nil {
				return fmt.Errorf("inspect study directory: %w", err)
			}
			if len(entries) > 0 {
				return fmt.Errorf("study directory %s already exists and is not empty", dir)
			}
		} else if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("stat study directory: %w", err)
		}
		if err := utils.EnsureDir(dir); err != nil {
			return err
		}
		if err := study.New(name, studyDescription, dir).Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Study initialized: %s\n", dir)
		return nil
	},
}

var studyAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Validate a dataset and store a normalized copy in a study",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadStudy(studyName)
		if err != nil {
			return err
		}
		opt, err := studyAddIn.options()
		if err != nil {
			return err
		}
		ref, _, err := s.AddDataset(args[0], studyAddDesc, opt)
		if err != nil {
			return err
		}
		if err := s.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Added %s to study '%s' (id %s, %d subjects, %d observations)\n",
			ref.Name, s.Name, ref.ID[:8], ref.Subjects, ref.Observations)
		return nil
	},
}

var studyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List studies, or a study's datasets and runs with --study",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if studyName == "" {
			root, err := studiesDir()
			if err != nil {
				return err
			}
			names, err := study.List(root)
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintf(out, "No studies found in %s\n", root)
				return nil
			}
			for _, n := range names {
				fmt.Fprintln(out, n)
			}
			return nil
		}

		s, err := loadStudy(studyName)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Study: %s\n", s.Name)
		if s.Description != "" {
			fmt.Fprintf(out, "Description: %s\n", s.Description)
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "\nDATASET\tNAME\tSUBJECTS\tOBSERVATIONS\tADDED")
		for _, id := range s.DatasetIDs() {
			ref := s.Datasets[id]
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", id[:8], ref.Name, ref.Subjects, ref.Observations, ref.AddedAt.Format("2006-01-02 15:04"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if len(s.Runs) == 0 {
			return nil
		}
		fmt.Fprintln(tw, "\nRUN\tDATASET\tWINDOW\tFORMAT\tFILE")
		for _, r := range s.Runs {
			ds := r.DatasetID
			if len(ds) > 8 {
				ds = ds[:8]
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID[:8], ds, r.Params.Window, r.Format, r.File)
		}
		return tw.Flush()
	},
}

var studyRunCmd = &cobra.Command{
	Use:   "run <dataset>",
	Short: "Run the full analysis on a stored dataset and record the report",
	Long:  `The dataset may be given by id, id prefix or original file name.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadStudy(studyName)
		if err != nil {
			return err
		}
		ref, err := s.FindDataset(args[0])
		if err != nil {
			return err
		}
		ds, err := s.LoadDataset(ref.ID)
		if err != nil {
			return err
		}
		stats, err := resolveStats(studyRunStats)
		if err != nil {
			return err
		}
		terminal, err := resolveTerminalTimes(studyRunTerminal)
		if err != nil {
			return err
		}
		format := studyRunFormat
		if format == "" {
			format = settings().ReportFormat
		}
		p := report.Params{
			Window:        resolveWindow(cmd, ds, studyRunStart, studyRunEnd),
			TerminalTimes: terminal,
			Stats:         stats,
		}
		r, err := analyze(cmd.Context(), ds, ref.Name, p, studyRunStrict)
		if err != nil {
			return err
		}
		run, err := s.AddRun(ref.ID, r, format)
		if err != nil {
			return err
		}
		if err := s.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Run %s saved to %s\n", run.ID[:8], filepath.Join(s.RootDir(), run.File))
		for label, n := range run.Excluded {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Warning: %s excluded %d subject(s)\n", label, n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(studyCmd)
	studyCmd.AddCommand(studyInitCmd, studyAddCmd, studyListCmd, studyRunCmd)

	studyInitCmd.Flags().StringVarP(&studyDescription, "desc", "d", "", "study description")

	for _, c := range []*cobra.Command{studyAddCmd, studyListCmd, studyRunCmd} {
		c.Flags().StringVarP(&studyName, "study", "s", "", "study name")
	}
	_ = studyAddCmd.MarkFlagRequired("study")
	_ = studyRunCmd.MarkFlagRequired("study")

	studyAddIn.register(studyAddCmd)
	studyAddCmd.Flags().StringVarP(&studyAddDesc, "desc", "d", "", "dataset description")

	studyRunCmd.Flags().Float64Var(&studyRunStart, "start", 0, "AUC window start time")
	studyRunCmd.Flags().Float64Var(&studyRunEnd, "end", 0, "AUC window end time (default: last observed time)")
	studyRunCmd.Flags().StringVar(&studyRunTerminal, "terminal-times", "", "comma-separated terminal time points for t1/2")
	studyRunCmd.Flags().StringVar(&studyRunStats, "stats", "", "statistics to report (default: all)")
	studyRunCmd.Flags().StringVar(&studyRunFormat, "format", "", "report format: text|markdown|json|yaml (default from config)")
	studyRunCmd.Flags().BoolVar(&studyRunStrict, "strict", false, "fail instead of excluding subjects when preconditions are unmet")
}

func studiesDir() (string, error) {
	dir := settings().StudiesDir
	if dir == "" {
		base, err := cfgpkg.Dir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(base, "studies")
	}
	dir, err := utils.ExpandHome(dir)
	if err != nil {
		return "", err
	}
	if err := utils.EnsureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// loadStudy resolves a study by name under the studies directory.
func loadStudy(name string) (*study.Study, error) {
	if name == "" {
		return nil, errors.New("study name is required")
	}
	root, err := studiesDir()
	if err != nil {
		return nil, err
	}
	s, err := study.Load(filepath.Join(root, name))
	if errors.Is(err, study.ErrNotFound) {
		return nil, fmt.Errorf("study '%s' not found; run 'nca study init %s' first", name, name)
	}
	return s, err
}
