/*
 * @module service/meta/time_identifier
 * @description 时间标识元数据定义，描述观测数据的时间粒度
 * @architecture 元数据层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 静态元数据定义
 * @rules 标签匹配不区分大小写，未知标签视为行级错误
 * @dependencies 无
 * @refs service/importer/observation_importer.go
 */

package meta

import "strings"

// TimeIdentifier 时间标识
type TimeIdentifier struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// TimeIdentifiers 支持的时间标识
var TimeIdentifiers = []TimeIdentifier{
	{Code: "AY", Label: "Academic Year"},
	{Code: "AYQ1", Label: "Academic Year Q1"},
	{Code: "AYQ2", Label: "Academic Year Q2"},
	{Code: "AYQ3", Label: "Academic Year Q3"},
	{Code: "AYQ4", Label: "Academic Year Q4"},
	{Code: "CY", Label: "Calendar Year"},
	{Code: "CYQ1", Label: "Calendar Year Q1"},
	{Code: "CYQ2", Label: "Calendar Year Q2"},
	{Code: "CYQ3", Label: "Calendar Year Q3"},
	{Code: "CYQ4", Label: "Calendar Year Q4"},
	{Code: "FY", Label: "Financial Year"},
	{Code: "FYQ1", Label: "Financial Year Q1"},
	{Code: "FYQ2", Label: "Financial Year Q2"},
	{Code: "FYQ3", Label: "Financial Year Q3"},
	{Code: "FYQ4", Label: "Financial Year Q4"},
	{Code: "TY", Label: "Tax Year"},
	{Code: "RY", Label: "Reporting Year"},
	{Code: "T1", Label: "Autumn Term"},
	{Code: "T1T2", Label: "Autumn and Spring Term"},
	{Code: "T2", Label: "Spring Term"},
	{Code: "T3", Label: "Summer Term"},
	{Code: "W1", Label: "Week 1"},
	{Code: "M1", Label: "January"},
	{Code: "M2", Label: "February"},
	{Code: "M3", Label: "March"},
	{Code: "M4", Label: "April"},
	{Code: "M5", Label: "May"},
	{Code: "M6", Label: "June"},
	{Code: "M7", Label: "July"},
	{Code: "M8", Label: "August"},
	{Code: "M9", Label: "September"},
	{Code: "M10", Label: "October"},
	{Code: "M11", Label: "November"},
	{Code: "M12", Label: "December"},
}

var timeIdentifierByLabel = func() map[string]TimeIdentifier {
	m := make(map[string]TimeIdentifier, len(TimeIdentifiers)*2)
	for _, ti := range TimeIdentifiers {
		m[strings.ToLower(ti.Label)] = ti
		m[strings.ToLower(ti.Code)] = ti
	}
	return m
}()

// TimeIdentifierFromLabel 按标签或代码解析时间标识，不区分大小写
func TimeIdentifierFromLabel(label string) (TimeIdentifier, bool) {
	ti, ok := timeIdentifierByLabel[strings.ToLower(strings.TrimSpace(label))]
	return ti, ok
}
