// Command sentclass-publish builds a tokenizer vocabulary from a corpus
// CSV and publishes a checkpoint for it, so a fresh builtin architecture
// becomes a resolvable model identifier with a real vocabulary.
package main

import (
	"fmt"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/gocarina/gocsv"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/golangast/sentclass/hub"
	"github.com/golangast/sentclass/neural/tokenizer"
)

type args struct {
	Corpus string `arg:"--corpus,required" help:"CSV with a sentence column to build the vocabulary from"`
	Base   string `arg:"--base" default:"encoder-mini" help:"base architecture or checkpoint identifier"`
	ID     string `arg:"--id,required" help:"identifier to publish the checkpoint under"`
}

type corpusRow struct {
	Sentence string `csv:"sentence"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "sentclass-publish:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var a args
	arg.MustParse(&a)

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	file, err := os.Open(a.Corpus)
	if err != nil {
		return err
	}
	defer file.Close()
	var rows []corpusRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return err
	}

	ckpt, err := hub.Resolve(a.Base)
	if err != nil {
		return err
	}
	sentences := make([]string, len(rows))
	for i, r := range rows {
		sentences[i] = r.Sentence
	}
	tokenizer.Build(ckpt.Vocab, sentences)

	arch := ckpt.Arch
	if n := ckpt.Vocab.Len(); n > arch.VocabSize {
		arch.VocabSize = n
	}
	out := &hub.Checkpoint{Arch: arch, Vocab: ckpt.Vocab, Params: ckpt.Params}
	if err := hub.Save(a.ID, out); err != nil {
		return err
	}

	logger.Info("checkpoint published",
		zap.String("id", a.ID),
		zap.String("base", a.Base),
		zap.Int("vocab_size", ckpt.Vocab.Len()),
	)
	return nil
}
