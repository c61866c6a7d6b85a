// Package trainer prepares a fine-tuning job and hands it to a training
// backend. The gradient loop itself runs outside this process; Go owns the
// inputs, the subprocess lifecycle, and persisting the result.
package trainer

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"aiserver/internal/model"
	"aiserver/internal/workspace"
)

// Recipe is the fixed set of training arguments. Field names follow the
// keys training frameworks expect in a training-arguments block.
type Recipe struct {
	OutputDir                 string  `yaml:"output_dir"`
	LoggingDir                string  `yaml:"logging_dir"`
	OverwriteOutputDir        bool    `yaml:"overwrite_output_dir"`
	PerDeviceTrainBatchSize   int     `yaml:"per_device_train_batch_size"`
	GradientAccumulationSteps int     `yaml:"gradient_accumulation_steps"`
	NumTrainEpochs            int     `yaml:"num_train_epochs"`
	LearningRate              float64 `yaml:"learning_rate"`
	SaveSteps                 int     `yaml:"save_steps"`
	SaveTotalLimit            int     `yaml:"save_total_limit"`
	EvalStrategy              string  `yaml:"eval_strategy"`
	EvalSteps                 int     `yaml:"eval_steps"`
	LoggingSteps              int     `yaml:"logging_steps"`
	FP16                      bool    `yaml:"fp16"`
}

// DefaultRecipe returns the training arguments rooted in l.
func DefaultRecipe(l workspace.Layout) Recipe {
	return Recipe{
		OutputDir:                 l.Training,
		LoggingDir:                l.TrainingLogs,
		OverwriteOutputDir:        true,
		PerDeviceTrainBatchSize:   1,
		GradientAccumulationSteps: 4,
		NumTrainEpochs:            2,
		LearningRate:              2e-5,
		SaveSteps:                 1000,
		SaveTotalLimit:            3,
		EvalStrategy:              "steps",
		EvalSteps:                 1000,
		LoggingSteps:              100,
		FP16:                      true,
	}
}

// EffectiveBatchSize is the number of examples per optimizer step.
func (r Recipe) EffectiveBatchSize() int {
	return r.PerDeviceTrainBatchSize * r.GradientAccumulationSteps
}

// Validate rejects recipes no backend can run.
func (r Recipe) Validate() error {
	switch {
	case r.OutputDir == "":
		return fmt.Errorf("recipe: output_dir is empty")
	case r.PerDeviceTrainBatchSize <= 0:
		return fmt.Errorf("recipe: per_device_train_batch_size must be positive")
	case r.GradientAccumulationSteps <= 0:
		return fmt.Errorf("recipe: gradient_accumulation_steps must be positive")
	case r.NumTrainEpochs <= 0:
		return fmt.Errorf("recipe: num_train_epochs must be positive")
	case r.LearningRate <= 0:
		return fmt.Errorf("recipe: learning_rate must be positive")
	}
	return nil
}

// FinalDir is where a backend must leave the trained weights.
func (r Recipe) FinalDir() string { return filepath.Join(r.OutputDir, "final") }

// jobConfig is the document handed to the external trainer.
type jobConfig struct {
	ID    string `yaml:"id"`
	Model struct {
		Name         string               `yaml:"name"`
		Path         string               `yaml:"path"`
		Quantization model.QuantizeConfig `yaml:"quantization"`
	} `yaml:"model"`
	Dataset struct {
		Path      string `yaml:"path"`
		Examples  int    `yaml:"examples"`
		TextField string `yaml:"text_field"`
	} `yaml:"dataset"`
	Device            string `yaml:"device"`
	FinalDir          string `yaml:"final_dir"`
	TrainingArguments Recipe `yaml:"training_arguments"`
}

// writeJobConfig renders j as YAML at j.ConfigPath.
func writeJobConfig(j Job, examples int) error {
	var c jobConfig
	c.ID = j.ID
	c.Model.Name = j.Model.Name
	c.Model.Path = j.Model.Dir
	c.Model.Quantization = j.Model.Quantize
	c.Dataset.Path = j.DatasetPath
	c.Dataset.Examples = examples
	c.Dataset.TextField = "code"
	c.Device = j.Device.Kind
	c.FinalDir = j.Recipe.FinalDir()
	// fp16 needs an accelerator
	c.TrainingArguments = j.Recipe
	if !j.Device.Accelerated() {
		c.TrainingArguments.FP16 = false
	}
	b, err := yaml.Marshal(&c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(j.ConfigPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(j.ConfigPath, b, 0o644)
}
