package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"civicdesk/backend/internal/categorizer"
	"civicdesk/backend/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	corpusPath string
	outPath    string
	configPath string
	modelPath  string
	maxWords   int
	epochs     int
	seed       uint64
)

var rootCmd = &cobra.Command{
	Use:   "train",
	Short: "Train and inspect the complaint classifier",
	Long: `Offline tooling for the complaint classifier.

Available subcommands:
  fit     - Train a model on a labelled corpus and save it
  predict - Categorize text with a saved model
  vocab   - Print the vocabulary a corpus would produce`,
	SilenceUsage: true,
}

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Train a model on a labelled corpus",
	Long: `Train a model on a JSON or YAML corpus of {text, category} records
and save it as a single artifact. Hyperparameters default to the serving
defaults and can be overridden with a YAML file passed via --config.`,
	RunE: runFit,
}

var predictCmd = &cobra.Command{
	Use:   "predict <text>",
	Short: "Categorize text with a saved model",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPredict,
}

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "Print the vocabulary built from a corpus",
	RunE:  runVocab,
}

func init() {
	fitCmd.Flags().StringVar(&corpusPath, "corpus", "data/corpus.yaml", "labelled corpus (JSON or YAML)")
	fitCmd.Flags().StringVar(&outPath, "out", "model", "output file or directory")
	fitCmd.Flags().StringVar(&configPath, "config", "", "YAML file with training hyperparameters")
	fitCmd.Flags().IntVar(&maxWords, "max-words", config.DefaultMaxWords, "vocabulary size including padding and OOV")
	fitCmd.Flags().IntVar(&epochs, "epochs", 0, "override the number of epochs")
	fitCmd.Flags().Uint64Var(&seed, "seed", 0, "random seed; 0 picks one")

	predictCmd.Flags().StringVar(&modelPath, "model", "model", "model file or directory")

	vocabCmd.Flags().StringVar(&corpusPath, "corpus", "data/corpus.yaml", "labelled corpus (JSON or YAML)")
	vocabCmd.Flags().IntVar(&maxWords, "max-words", config.DefaultMaxWords, "vocabulary size including padding and OOV")

	rootCmd.AddCommand(fitCmd, predictCmd, vocabCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadTrainConfig() (categorizer.TrainConfig, error) {
	cfg := categorizer.DefaultTrainConfig()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", configPath, err)
		}
	}
	if epochs > 0 {
		cfg.Epochs = epochs
	}
	if seed != 0 {
		cfg.Seed = seed
	}
	return cfg, nil
}

func runFit(cmd *cobra.Command, _ []string) error {
	cfg, err := loadTrainConfig()
	if err != nil {
		return err
	}
	corpus, err := categorizer.LoadCorpus(corpusPath)
	if err != nil {
		return err
	}
	vocab, err := categorizer.BuildVocabulary(corpus, maxWords)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Loaded %d examples, vocabulary of %d tokens\n", len(corpus), vocab.Size())

	model, report, err := categorizer.Train(corpus, vocab, cfg)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "epoch\tloss\tacc\tval_loss\tval_acc")
	for _, e := range report.Epochs {
		fmt.Fprintf(w, "%d\t%.4f\t%.3f\t%.4f\t%.3f\n", e.Epoch, e.Loss, e.Accuracy, e.ValidationLoss, e.ValidationAccuracy)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if err := model.Save(outPath); err != nil {
		return err
	}
	final := report.Final()
	fmt.Fprintf(out, "Saved model to %s (seed %d, train %d, validation %d, final accuracy %.3f)\n",
		outPath, report.Seed, report.TrainExamples, report.ValidationExamples, final.Accuracy)
	return nil
}

func runPredict(cmd *cobra.Command, args []string) error {
	model, err := categorizer.Load(modelPath)
	if err != nil {
		return err
	}
	p := model.Predict(strings.Join(args, " "))
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%.1f%%)\n", p.Category, p.Confidence*100)
	for _, s := range p.Ranked {
		fmt.Fprintf(out, "  %-14s %.3f\n", s.Category, s.Probability)
	}
	return nil
}

func runVocab(cmd *cobra.Command, _ []string) error {
	corpus, err := categorizer.LoadCorpus(corpusPath)
	if err != nil {
		return err
	}
	vocab, err := categorizer.BuildVocabulary(corpus, maxWords)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for i, token := range vocab.Tokens() {
		fmt.Fprintf(out, "%d\t%s\n", i, token)
	}
	return nil
}
