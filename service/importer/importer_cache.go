/*
 * @module service/importer/importer_cache
 * @description 导入身份缓存，按规范化组合键记忆已解析的参照实体
 * @architecture 分层架构 - 数据处理层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 导入开始时构造 -> 预扫描填充 -> 批次导入命中 -> 导入结束丢弃
 * @rules 缓存实例随单次导入的生命周期注入，主体导入开始时在锁内清空，避免跨主体泄漏
 * @dependencies sync, service/models
 * @refs service/importer/location_resolver.go, service/importer/filter_resolver.go
 */

package importer

import (
	"sync"

	"statistics-import-service/service/models"
)

// ImporterCache 单次导入范围内的参照实体缓存
type ImporterCache struct {
	mu           sync.RWMutex
	locations    map[string]*models.Location
	filterGroups map[string]*models.FilterGroup
	filterItems  map[string]*models.FilterItem
}

// NewImporterCache 创建空缓存
func NewImporterCache() *ImporterCache {
	c := &ImporterCache{}
	c.reset()
	return c
}

func (c *ImporterCache) reset() {
	c.locations = make(map[string]*models.Location)
	c.filterGroups = make(map[string]*models.FilterGroup)
	c.filterItems = make(map[string]*models.FilterItem)
}

// Clear 清空全部缓存，主体导入开始时调用
func (c *ImporterCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// GetLocation 按组合键查找位置
func (c *ImporterCache) GetLocation(key string) (*models.Location, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	location, ok := c.locations[key]
	return location, ok
}

// PutLocation 缓存位置
func (c *ImporterCache) PutLocation(key string, location *models.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locations[key] = location
}

// GetFilterGroup 按组合键查找筛选分组
func (c *ImporterCache) GetFilterGroup(key string) (*models.FilterGroup, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	group, ok := c.filterGroups[key]
	return group, ok
}

// PutFilterGroup 缓存筛选分组
func (c *ImporterCache) PutFilterGroup(key string, group *models.FilterGroup) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filterGroups[key] = group
}

// GetFilterItem 按组合键查找筛选项
func (c *ImporterCache) GetFilterItem(key string) (*models.FilterItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.filterItems[key]
	return item, ok
}

// PutFilterItem 缓存筛选项
func (c *ImporterCache) PutFilterItem(key string, item *models.FilterItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filterItems[key] = item
}
