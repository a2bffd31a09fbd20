/*
 * @module service/importer/location_resolver
 * @description 位置解析器，按出现的观测单元子属性查找或创建去重的位置实体
 * @architecture 分层架构 - 数据处理层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 构造组合键 -> 缓存命中返回 -> 库内查找 -> 未命中则创建并回填缓存
 * @rules 身份由在场子属性的 (单元, 代码, 名称) 加地理层级构成；缺席子属性不参与条件，
 *        不同的在场组合即不同身份；缺席子属性落库为空串哨兵
 * @dependencies gorm.io/gorm, service/models, service/meta
 * @refs service/importer/observation_importer.go, service/importer/importer_cache.go
 */

package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"statistics-import-service/service/meta"
	"statistics-import-service/service/models"

	"gorm.io/gorm"
)

// LocationAttribute 一行数据中某个观测单元的取值
type LocationAttribute struct {
	Unit    meta.ObservationalUnit
	Code    string
	OldCode string // 仅本地当局使用
	Name    string
}

// present 子属性是否在场，任一取值非空即在场
func (a LocationAttribute) present() bool {
	return a.Code != "" || a.OldCode != "" || a.Name != ""
}

// cacheToken 组合键片段：代码为空时回退到旧代码
func (a LocationAttribute) cacheToken() string {
	code := a.Code
	if code == "" {
		code = a.OldCode
	}
	return fmt.Sprintf("%s:%s:%s", a.Unit, code, a.Name)
}

// LocationResolver 位置解析器
type LocationResolver struct {
	db    *gorm.DB
	cache *ImporterCache
}

// NewLocationResolver 创建位置解析器实例
func NewLocationResolver(db *gorm.DB, cache *ImporterCache) *LocationResolver {
	return &LocationResolver{db: db, cache: cache}
}

// cacheKey 地理层级前缀加在场子属性片段的规范化组合键
func locationCacheKey(level meta.GeographicLevel, attrs []LocationAttribute) string {
	tokens := make([]string, 0, len(attrs)+1)
	tokens = append(tokens, string(level))
	for _, attr := range attrs {
		if attr.present() {
			tokens = append(tokens, attr.cacheToken())
		}
	}
	return strings.Join(tokens, "_")
}

// Find 查找或创建位置实体
func (r *LocationResolver) Find(ctx context.Context, level meta.GeographicLevel, attrs []LocationAttribute) (*models.Location, error) {
	key := locationCacheKey(level, attrs)
	if location, ok := r.cache.GetLocation(key); ok {
		return location, nil
	}

	// 仅以在场子属性构建相等条件，缺席子属性不约束
	conditions := map[string]interface{}{
		"geographic_level": string(level),
	}
	for _, attr := range attrs {
		if !attr.present() {
			continue
		}
		columns := meta.ObservationalUnitColumns[attr.Unit]
		conditions[columns[0]] = attr.Code
		conditions[columns[1]] = attr.Name
		if attr.Unit == meta.UnitLocalAuthority {
			conditions[meta.LocalAuthorityOldCodeColumn] = attr.OldCode
		}
	}

	var existing models.Location
	err := r.db.WithContext(ctx).Where(conditions).First(&existing).Error
	if err == nil {
		r.cache.PutLocation(key, &existing)
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查找位置失败: %w", err)
	}

	// 未命中则创建，缺席子属性保持空串哨兵
	location := &models.Location{GeographicLevel: string(level)}
	for _, attr := range attrs {
		if !attr.present() {
			continue
		}
		location.SetUnit(attr.Unit, attr.Code, attr.Name)
		if attr.Unit == meta.UnitLocalAuthority {
			location.OldLaCode = attr.OldCode
		}
	}
	if err := r.db.WithContext(ctx).Create(location).Error; err != nil {
		return nil, fmt.Errorf("创建位置失败: %w", err)
	}
	r.cache.PutLocation(key, location)
	return location, nil
}
