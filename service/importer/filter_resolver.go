/*
 * @module service/importer/filter_resolver
 * @description 筛选解析器，两级查找或创建筛选分组和筛选项
 * @architecture 分层架构 - 数据处理层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 规范化标签 -> 解析分组 -> 解析筛选项，均为缓存-库-缓存模式
 * @rules 分组标签为空落为 Default，筛选项标签为空落为 Not specified；
 *        同一主体内重复空白标签收敛到同一分组/筛选项
 * @dependencies gorm.io/gorm, service/models, service/meta
 * @refs service/importer/observation_importer.go, service/importer/importer_cache.go
 */

package importer

import (
	"context"
	"errors"
	"fmt"

	"statistics-import-service/service/meta"
	"statistics-import-service/service/models"

	"gorm.io/gorm"
)

// FilterResolver 筛选解析器
type FilterResolver struct {
	db    *gorm.DB
	cache *ImporterCache
}

// NewFilterResolver 创建筛选解析器实例
func NewFilterResolver(db *gorm.DB, cache *ImporterCache) *FilterResolver {
	return &FilterResolver{db: db, cache: cache}
}

// FindFilterItem 查找或创建 (分组, 筛选项) 对，返回筛选项
func (r *FilterResolver) FindFilterItem(ctx context.Context, itemLabel, groupLabel string, filter *models.Filter) (*models.FilterItem, error) {
	if groupLabel == "" {
		groupLabel = meta.DefaultFilterGroupLabel
	}
	if itemLabel == "" {
		itemLabel = meta.DefaultFilterItemLabel
	}

	group, err := r.findFilterGroup(ctx, filter.ID, groupLabel)
	if err != nil {
		return nil, err
	}
	return r.findItem(ctx, group.ID, itemLabel)
}

// findFilterGroup 按 (FilterID, Label) 查找或创建筛选分组
func (r *FilterResolver) findFilterGroup(ctx context.Context, filterID, label string) (*models.FilterGroup, error) {
	key := filterID + ":" + label
	if group, ok := r.cache.GetFilterGroup(key); ok {
		return group, nil
	}

	var existing models.FilterGroup
	err := r.db.WithContext(ctx).
		Where("filter_id = ? AND label = ?", filterID, label).
		First(&existing).Error
	if err == nil {
		r.cache.PutFilterGroup(key, &existing)
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查找筛选分组失败: %w", err)
	}

	group := &models.FilterGroup{FilterID: filterID, Label: label}
	if err := r.db.WithContext(ctx).Create(group).Error; err != nil {
		return nil, fmt.Errorf("创建筛选分组失败 %s: %w", label, err)
	}
	r.cache.PutFilterGroup(key, group)
	return group, nil
}

// findItem 按 (FilterGroupID, Label) 查找或创建筛选项
func (r *FilterResolver) findItem(ctx context.Context, groupID, label string) (*models.FilterItem, error) {
	key := groupID + ":" + label
	if item, ok := r.cache.GetFilterItem(key); ok {
		return item, nil
	}

	var existing models.FilterItem
	err := r.db.WithContext(ctx).
		Where("filter_group_id = ? AND label = ?", groupID, label).
		First(&existing).Error
	if err == nil {
		r.cache.PutFilterItem(key, &existing)
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查找筛选项失败: %w", err)
	}

	item := &models.FilterItem{FilterGroupID: groupID, Label: label}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, fmt.Errorf("创建筛选项失败 %s: %w", label, err)
	}
	r.cache.PutFilterItem(key, item)
	return item, nil
}
