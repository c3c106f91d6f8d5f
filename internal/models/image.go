package models

// SimilarityDescriptor 相似度检索使用的特征空间
type SimilarityDescriptor string

const (
	DescriptorRGBCube SimilarityDescriptor = "rgbcube"
	DescriptorHueSat  SimilarityDescriptor = "huesat"
)

// Valid 判断特征空间是否受服务端支持
func (d SimilarityDescriptor) Valid() bool {
	return d == DescriptorRGBCube || d == DescriptorHueSat
}

// Descriptor 图片元数据描述，不含二进制内容
type Descriptor struct {
	ID            int64    `json:"id" mapstructure:"id"`
	Name          string   `json:"name" mapstructure:"name"`
	MediaType     string   `json:"type" mapstructure:"type"`
	Size          string   `json:"size" mapstructure:"size"`
	OwnerID       string   `json:"userid,omitempty" mapstructure:"userid"`
	IsPublic      bool     `json:"ispublic" mapstructure:"ispublic"`
	Likes         int      `json:"likes" mapstructure:"likes"`
	LikedByViewer *bool    `json:"isLiked,omitempty" mapstructure:"isLiked"`
	Similarity    *float64 `json:"similarity,omitempty" mapstructure:"similarity"`
}

// ImageRecord 画廊中的一条记录
// Payload 为空表示尚未水合
type ImageRecord struct {
	Descriptor `mapstructure:",squash"`
	Payload    string `json:"payload,omitempty"`
}

// Hydrate 将 payload 合并到描述中，生成完整记录
func (d Descriptor) Hydrate(payload string) ImageRecord {
	return ImageRecord{Descriptor: d, Payload: payload}
}

// Hydrated 是否已经包含可显示内容
func (r ImageRecord) Hydrated() bool {
	return r.Payload != ""
}

// Owned 是否有归属用户
func (r ImageRecord) Owned() bool {
	return r.OwnerID != ""
}

// Clone 深拷贝可选字段，避免共享指针
func (r ImageRecord) Clone() ImageRecord {
	out := r
	if r.LikedByViewer != nil {
		v := *r.LikedByViewer
		out.LikedByViewer = &v
	}
	if r.Similarity != nil {
		v := *r.Similarity
		out.Similarity = &v
	}
	return out
}

// Patch 按 id 合并的局部字段，nil 表示不修改
type Patch struct {
	IsPublic      *bool `json:"ispublic,omitempty" mapstructure:"ispublic"`
	Likes         *int  `json:"likes,omitempty" mapstructure:"likes"`
	LikedByViewer *bool `json:"isLiked,omitempty" mapstructure:"isLiked"`
}

// Empty 没有任何字段需要合并
func (p Patch) Empty() bool {
	return p.IsPublic == nil && p.Likes == nil && p.LikedByViewer == nil
}

// ApplyTo 将 patch 合并到记录，返回新记录
func (p Patch) ApplyTo(r ImageRecord) ImageRecord {
	out := r.Clone()
	if p.IsPublic != nil {
		out.IsPublic = *p.IsPublic
	}
	if p.Likes != nil {
		out.Likes = *p.Likes
	}
	if p.LikedByViewer != nil {
		v := *p.LikedByViewer
		out.LikedByViewer = &v
	}
	return out
}

// Bool 返回 bool 指针
func Bool(v bool) *bool { return &v }

// Int 返回 int 指针
func Int(v int) *int { return &v }
