package jsl

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/tigerroll/go_adhoc_batch/pkg/batch/util/exception"
	logger "github.com/tigerroll/go_adhoc_batch/pkg/batch/util/logger"
)

// LoadJSLDefinitionFromBytes は JSL YAML のバイトデータからジョブ定義をロードし、検証します。
// この関数はアプリケーション側で埋め込まれた JSL ファイルをロードするために使用されます。
func LoadJSLDefinitionFromBytes(data []byte) ([]Job, error) {
	logger.Infof("JSL 定義のロードを開始します。")

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, exception.NewBatchError("jsl_loader", "JSL ファイルのパースに失敗しました", err, false, false)
	}

	seen := make(map[string]struct{}, len(catalog.Jobs))
	for _, jobDef := range catalog.Jobs {
		if err := validateJob(jobDef); err != nil {
			return nil, err
		}
		if _, exists := seen[jobDef.Name]; exists {
			return nil, exception.NewBatchError("jsl_loader", fmt.Sprintf("JSL ジョブ '%s' が重複しています", jobDef.Name), nil, false, false)
		}
		seen[jobDef.Name] = struct{}{}
		logger.Debugf("JSL ジョブ '%s' をロードしました。ステップ数: %d", jobDef.Name, len(jobDef.Steps))
	}

	logger.Infof("JSL 定義のロードが完了しました。ロードされたジョブ数: %d", len(catalog.Jobs))
	return catalog.Jobs, nil
}

func validateJob(jobDef Job) error {
	if jobDef.Name == "" {
		return exception.NewBatchError("jsl_loader", "JSL ジョブに 'name' が定義されていません", nil, false, false)
	}
	if len(jobDef.Steps) == 0 {
		return exception.NewBatchError("jsl_loader", fmt.Sprintf("JSL ジョブ '%s' に 'steps' が定義されていません", jobDef.Name), nil, false, false)
	}
	ids := make(map[string]struct{}, len(jobDef.Steps))
	for i, s := range jobDef.Steps {
		if s.ID == "" {
			return exception.NewBatchError("jsl_loader", fmt.Sprintf("JSL ジョブ '%s' の %d 番目のステップに 'id' が定義されていません", jobDef.Name, i+1), nil, false, false)
		}
		if _, dup := ids[s.ID]; dup {
			return exception.NewBatchError("jsl_loader", fmt.Sprintf("JSL ジョブ '%s' のステップID '%s' が重複しています", jobDef.Name, s.ID), nil, false, false)
		}
		ids[s.ID] = struct{}{}
		if s.Tasklet.Ref == "" {
			return exception.NewBatchError("jsl_loader", fmt.Sprintf("JSL ジョブ '%s' のステップ '%s' に 'tasklet.ref' が定義されていません", jobDef.Name, s.ID), nil, false, false)
		}
		if s.StartLimit < 0 {
			return exception.NewBatchError("jsl_loader", fmt.Sprintf("JSL ジョブ '%s' のステップ '%s' の 'start-limit' が負の値です", jobDef.Name, s.ID), nil, false, false)
		}
	}
	return nil
}
