// Command gincheck is the standalone CLI front-end for the core: given a
// path to a GIN index's main-fork file, it runs gin.CheckIndex and reports
// the first invariant violation found, or confirms soundness. It also ships
// a fixture subcommand so the traversal can be exercised without a live
// database, using ginbuild the same way the test suite does.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/gincheck/gincheck/gin"
	"github.com/gincheck/gincheck/gin/state"
	"github.com/gincheck/gincheck/ginbuild"
	"github.com/gincheck/gincheck/ginlog"
)

func init() {
	cobra.OnInitialize(loadConfig)
	initCheckCmd()
	initFixtureCmd()
}

var info = "gincheck"
var RootCmd = &cobra.Command{
	Use:          "gincheck",
	Short:        info,
	Long:         info + ": verify the structural invariants of a GIN index",
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("use gincheck --help or -h")
	},
}

var defCfgFilePaths = []string{".", "etc/gincheck"}
var cfgFileName = "gincheck.toml"

// loadConfig mirrors the teacher's tester CLI: an optional TOML file
// supplies flag defaults, but its absence is not an error since most
// invocations of this tool are ad hoc.
func loadConfig() {
	for _, dirPath := range defCfgFilePaths {
		fpath := filepath.Join(dirPath, cfgFileName)
		if _, err := os.Stat(fpath); err != nil {
			continue
		}
		viper.SetConfigFile(fpath)
		if err := viper.ReadInConfig(); err != nil {
			ginlog.L().Warn("failed to load config file", zap.String("path", fpath), zap.Error(err))
			continue
		}
		return
	}
}

// checkCfg holds the check subcommand's bound flags.
var checkCfg struct {
	IndexPath        string
	IndexName        string
	KeyType          string
	MaxTuplesPerPage int
	Verbose          bool
}

var checkInfo = "check a GIN index file for structural corruption"
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: checkInfo,
	Long:  checkInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		bindCheckFlags()
		return runCheck()
	},
}

func initCheckCmd() {
	RootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkCfg.IndexPath, "index-path", "", "path to the index's main-fork file (required)")
	checkCmd.Flags().StringVar(&checkCfg.IndexName, "index-name", "gincheck", "name to attribute in reported errors")
	checkCmd.Flags().StringVar(&checkCfg.KeyType, "key-type", "string", "key domain of the indexed attribute: string or int64")
	checkCmd.Flags().IntVar(&checkCfg.MaxTuplesPerPage, "max-tuples-per-page", 0, "override I8's density ceiling (0 = default)")
	checkCmd.Flags().BoolVarP(&checkCfg.Verbose, "verbose", "v", false, "emit debug-level traversal logging")

	viper.BindPFlag("check.indexPath", checkCmd.Flags().Lookup("index-path"))
	viper.BindPFlag("check.indexName", checkCmd.Flags().Lookup("index-name"))
	viper.BindPFlag("check.keyType", checkCmd.Flags().Lookup("key-type"))
	viper.BindPFlag("check.maxTuplesPerPage", checkCmd.Flags().Lookup("max-tuples-per-page"))
	viper.BindPFlag("check.verbose", checkCmd.Flags().Lookup("verbose"))
}

func bindCheckFlags() {
	if viper.IsSet("check.indexPath") {
		checkCfg.IndexPath = viper.GetString("check.indexPath")
	}
	if viper.IsSet("check.indexName") {
		checkCfg.IndexName = viper.GetString("check.indexName")
	}
	if viper.IsSet("check.keyType") {
		checkCfg.KeyType = viper.GetString("check.keyType")
	}
	if viper.IsSet("check.maxTuplesPerPage") {
		checkCfg.MaxTuplesPerPage = viper.GetInt("check.maxTuplesPerPage")
	}
	if viper.IsSet("check.verbose") {
		checkCfg.Verbose = viper.GetBool("check.verbose")
	}
}

func runCheck() error {
	setupLogging(checkCfg.Verbose)

	if checkCfg.IndexPath == "" {
		return fmt.Errorf("--index-path is required")
	}
	cmp, err := comparatorForKeyType(checkCfg.KeyType)
	if err != nil {
		return err
	}

	idx, err := gin.OpenFile(checkCfg.IndexPath, checkCfg.IndexName, cmp)
	if err != nil {
		return fmt.Errorf("opening %s: %w", checkCfg.IndexPath, err)
	}
	defer idx.Close()

	err = gin.CheckIndex(context.Background(), idx, gin.CheckOptions{MaxTuplesPerPage: checkCfg.MaxTuplesPerPage})
	if err != nil {
		var ce *gin.CheckError
		if errors.As(err, &ce) {
			ginlog.L().Error("index verification failed",
				zap.String("kind", ce.Kind.String()),
				zap.Error(err),
			)
		} else {
			ginlog.L().Error("index verification failed", zap.Error(err))
		}
		return err
	}

	fmt.Printf("index %q: sound\n", checkCfg.IndexName)
	return nil
}

// fixtureCfg holds the fixture subcommand's bound flags.
var fixtureCfg struct {
	OutPath                 string
	Rows                    int
	InlineThreshold         int
	EntryPageCapacity       int
	PostingLeafCapacity     int
	PostingInternalCapacity int
	Compressed              bool
	CheckAfterBuild         bool
}

var fixtureInfo = "build a synthetic GIN index fixture for exercising the checker"
var fixtureCmd = &cobra.Command{
	Use:   "fixture",
	Short: fixtureInfo,
	Long:  fixtureInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		bindFixtureFlags()
		return runFixture()
	},
}

func initFixtureCmd() {
	RootCmd.AddCommand(fixtureCmd)
	fixtureCmd.Flags().StringVar(&fixtureCfg.OutPath, "out", "", "path to write the fixture file (required)")
	fixtureCmd.Flags().IntVar(&fixtureCfg.Rows, "rows", 1000, "number of (key, heap-pointer) postings to generate")
	fixtureCmd.Flags().IntVar(&fixtureCfg.InlineThreshold, "inline-threshold", 8, "largest posting list stored inline")
	fixtureCmd.Flags().IntVar(&fixtureCfg.EntryPageCapacity, "entry-page-capacity", 32, "tuples per entry page")
	fixtureCmd.Flags().IntVar(&fixtureCfg.PostingLeafCapacity, "posting-leaf-capacity", 128, "item pointers per posting leaf")
	fixtureCmd.Flags().IntVar(&fixtureCfg.PostingInternalCapacity, "posting-internal-capacity", 128, "downlinks per posting internal page")
	fixtureCmd.Flags().BoolVar(&fixtureCfg.Compressed, "compressed", false, "encode posting leaves with varbyte-delta compression")
	fixtureCmd.Flags().BoolVar(&fixtureCfg.CheckAfterBuild, "check", true, "run CheckIndex against the built fixture before exiting")

	viper.BindPFlag("fixture.out", fixtureCmd.Flags().Lookup("out"))
	viper.BindPFlag("fixture.rows", fixtureCmd.Flags().Lookup("rows"))
}

func bindFixtureFlags() {
	if viper.IsSet("fixture.out") {
		fixtureCfg.OutPath = viper.GetString("fixture.out")
	}
	if viper.IsSet("fixture.rows") {
		fixtureCfg.Rows = viper.GetInt("fixture.rows")
	}
}

func runFixture() error {
	setupLogging(false)

	if fixtureCfg.OutPath == "" {
		return fmt.Errorf("--out is required")
	}

	opts := ginbuild.Options{
		InlineThreshold:         fixtureCfg.InlineThreshold,
		EntryPageCapacity:       fixtureCfg.EntryPageCapacity,
		PostingLeafCapacity:     fixtureCfg.PostingLeafCapacity,
		PostingInternalCapacity: fixtureCfg.PostingInternalCapacity,
		Compressed:              fixtureCfg.Compressed,
	}
	cmp := state.ScalarComparator{}
	b := ginbuild.New(cmp, opts)
	for i := 0; i < fixtureCfg.Rows; i++ {
		b.Add(1, fmt.Sprintf("key-%06d", i%997), gin.CategoryNormal, gin.ItemPointer{Block: gin.BlockNumber(i/100 + 1), Offset: uint16(i%100 + 1)})
	}

	fx, err := b.Build()
	if err != nil {
		return fmt.Errorf("building fixture: %w", err)
	}
	f, err := fx.WriteTemp(filepath.Base(fixtureCfg.OutPath))
	if err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	defer f.Close()
	if err := os.Rename(f.Name(), fixtureCfg.OutPath); err != nil {
		return fmt.Errorf("moving fixture into place: %w", err)
	}

	fmt.Printf("wrote fixture with %d postings to %s\n", fixtureCfg.Rows, fixtureCfg.OutPath)

	if !fixtureCfg.CheckAfterBuild {
		return nil
	}
	idx, err := gin.OpenFile(fixtureCfg.OutPath, "fixture", cmp)
	if err != nil {
		return fmt.Errorf("reopening fixture: %w", err)
	}
	defer idx.Close()
	if err := gin.CheckIndex(context.Background(), idx, gin.CheckOptions{}); err != nil {
		return fmt.Errorf("built fixture failed its own check: %w", err)
	}
	fmt.Println("fixture check: sound")
	return nil
}

func comparatorForKeyType(keyType string) (state.Comparator, error) {
	switch keyType {
	case "string", "int64":
		return state.ScalarComparator{}, nil
	default:
		return nil, fmt.Errorf("unsupported --key-type %q: want string or int64", keyType)
	}
}

func setupLogging(verbose bool) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = ""
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return
	}
	ginlog.SetLogger(l)
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
