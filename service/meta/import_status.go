/*
 * @module service/meta/import_status
 * @description 数据导入状态元数据定义，包括导入阶段枚举、状态判定和阶段顺序
 * @architecture 元数据层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow QUEUED -> STAGE_1 -> STAGE_2 -> STAGE_3 -> STAGE_4 -> COMPLETE，异常时进入 FAILED 或 ABORTING -> CANCELLED/FAILED
 * @rules 状态只能向前推进，终态后不再变化
 * @dependencies 无
 * @refs service/importer/status_service.go, service/models/data_import.go
 */

package meta

// ImportStatus 导入状态
type ImportStatus string

const (
	ImportStatusQueued    ImportStatus = "QUEUED"
	ImportStatusStage1    ImportStatus = "STAGE_1" // 文件校验
	ImportStatusStage2    ImportStatus = "STAGE_2" // 元数据与筛选项/位置导入
	ImportStatusStage3    ImportStatus = "STAGE_3" // 文件分片
	ImportStatusStage4    ImportStatus = "STAGE_4" // 按批次导入观测数据
	ImportStatusComplete  ImportStatus = "COMPLETE"
	ImportStatusFailed    ImportStatus = "FAILED"
	ImportStatusAborting  ImportStatus = "ABORTING"
	ImportStatusCancelled ImportStatus = "CANCELLED"
)

// importStatusOrder 阶段顺序，用于判断状态是否回退
var importStatusOrder = map[ImportStatus]int{
	ImportStatusQueued:    0,
	ImportStatusStage1:    1,
	ImportStatusStage2:    2,
	ImportStatusStage3:    3,
	ImportStatusStage4:    4,
	ImportStatusAborting:  5,
	ImportStatusComplete:  6,
	ImportStatusCancelled: 6,
	ImportStatusFailed:    6,
}

// Order 返回状态的阶段序号
func (s ImportStatus) Order() int {
	return importStatusOrder[s]
}

// IsFinished 是否为终态
func (s ImportStatus) IsFinished() bool {
	switch s {
	case ImportStatusComplete, ImportStatusFailed, ImportStatusCancelled:
		return true
	}
	return false
}

// IsAborting 是否正在中止
func (s ImportStatus) IsAborting() bool {
	return s == ImportStatusAborting
}

// IsFinishedOrAborting 是否已结束或正在中止
func (s ImportStatus) IsFinishedOrAborting() bool {
	return s.IsFinished() || s.IsAborting()
}

// IsValidImportStatus 校验导入状态取值
func IsValidImportStatus(s string) bool {
	_, ok := importStatusOrder[ImportStatus(s)]
	return ok
}
