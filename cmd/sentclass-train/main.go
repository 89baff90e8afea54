// Command sentclass-train fine-tunes a sentence classifier on labeled
// CSV data and reports per-epoch metrics.
package main

import (
	"fmt"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/golangast/sentclass/config"
	"github.com/golangast/sentclass/dataset"
	"github.com/golangast/sentclass/hub"
	"github.com/golangast/sentclass/loader"
	"github.com/golangast/sentclass/runstore"
	"github.com/golangast/sentclass/train"
)

type args struct {
	Config    string `arg:"-c,--config" default:"sentclass.yaml" help:"hyperparameter YAML file"`
	Train     string `arg:"--train,required" help:"training CSV (sentence,label)"`
	Val       string `arg:"--val,required" help:"validation CSV"`
	Test      string `arg:"--test" help:"optional test CSV, evaluated after training"`
	MetricsDB string `arg:"--metrics-db" help:"optional SQLite file for run metrics"`
	SaveAs    string `arg:"--save-as" help:"checkpoint identifier to publish the trained model under"`
	Seed      int64  `arg:"--seed" default:"42" help:"shuffle seed"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "sentclass-train:", err)
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

	hp, err := config.Load(a.Config)
	if err != nil {
		return err
	}
	logger.Info("configuration loaded",
		zap.String("upstream_model", hp.UpstreamModel),
		zap.Int("num_classes", hp.NumClasses),
		zap.Float64("lr", hp.LR),
		zap.Int("epochs", hp.Epochs),
		zap.Bool("freeze", hp.Freeze),
	)

	trainDS, err := dataset.New(a.Train, hp)
	if err != nil {
		return err
	}
	valDS, err := dataset.New(a.Val, hp)
	if err != nil {
		return err
	}

	sink := train.MultiSink{train.ZapSink{Logger: logger}}
	if a.MetricsDB != "" {
		store, err := runstore.Open(a.MetricsDB, hp.UpstreamModel)
		if err != nil {
			return err
		}
		defer store.Close()
		logger.Info("recording run", zap.String("run_id", store.RunID()))
		sink = append(sink, store)
	}

	module, err := train.New(hp, sink)
	if err != nil {
		return err
	}

	trainLoader := loader.New(trainDS, hp.BatchSize, true, a.Seed)
	valLoader := loader.New(valDS, hp.BatchSize, false, a.Seed)

	totalSteps := trainLoader.Steps() * hp.Epochs
	opt, sched := module.ConfigureOptimizers(totalSteps)

	for epoch := 0; epoch < hp.Epochs; epoch++ {
		trainLoader.Reset()
		var results []train.StepResult
		for {
			batch, err := trainLoader.Next()
			if err != nil {
				return err
			}
			if batch == nil {
				break
			}
			res, err := module.TrainingStep(batch)
			if err != nil {
				return err
			}
			opt.Step()
			sched.Step()
			opt.ZeroGrad()
			results = append(results, res)
		}
		module.EpochEnd(train.PhaseTrain, epoch, results)

		valResults, err := evaluate(valLoader, module.ValidationStep)
		if err != nil {
			return err
		}
		module.EpochEnd(train.PhaseVal, epoch, valResults)
	}

	if a.Test != "" {
		testDS, err := dataset.New(a.Test, hp)
		if err != nil {
			return err
		}
		testLoader := loader.New(testDS, hp.BatchSize, false, a.Seed)
		testResults, err := evaluate(testLoader, module.TestStep)
		if err != nil {
			return err
		}
		module.EpochEnd(train.PhaseTest, hp.Epochs-1, testResults)
	}

	if a.SaveAs != "" {
		ckpt, err := hub.Resolve(hp.UpstreamModel)
		if err != nil {
			return err
		}
		out := &hub.Checkpoint{
			Arch:   module.Model().Config,
			Vocab:  ckpt.Vocab,
			Params: module.Model().SaveParams(),
		}
		if err := hub.Save(a.SaveAs, out); err != nil {
			return err
		}
		logger.Info("checkpoint saved", zap.String("id", a.SaveAs))
	}
	return nil
}

type stepFn func(*loader.Batch) (train.StepResult, error)

func evaluate(l *loader.Loader, step stepFn) ([]train.StepResult, error) {
	l.Reset()
	var results []train.StepResult
	for {
		batch, err := l.Next()
		if err != nil {
			return nil, err
		}
		if batch == nil {
			return results, nil
		}
		res, err := step(batch)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
}
