// Package fakeremote 测试用的远端图片服务，协议与真实服务一致
package fakeremote

import (
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// PNG 最小的 PNG 头，足以被识别为 image/png
var PNG = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52}

// JPEG 最小的 JPEG 头
var JPEG = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46, 0x00, 0x01}

// Image 服务端保存的图片
type Image struct {
	ID       int64
	Name     string
	Type     string
	Data     []byte
	Owner    string
	Public   bool
	Likes    int
	LikedBy  map[string]bool
	Filtered []byte // 滤镜接口返回的内容，为空时返回 Data
}

type user struct {
	name     string
	password string
	bio      string
}

// Server 假服务
type Server struct {
	mu     sync.Mutex
	images []*Image
	nextID int64
	users  map[string]user

	// 单条 payload 失败 / 延迟
	failPayload  map[int64]bool
	payloadDelay map[int64]time.Duration

	// 整体失败开关
	failList   bool
	failWrites bool

	// 上传接口是否返回创建的描述（旧版服务只返回文本）
	echoUpload bool

	// 非 nil 时 like 类接口固定返回该值
	forcedLikes *int

	// privacy 接口在响应前等待的时间
	privacyDelay func(call int) time.Duration

	calls map[string]int
	srv   *httptest.Server
}

// New 启动假服务，测试结束时自动关闭
func New(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		nextID:       1,
		users:        make(map[string]user),
		failPayload:  make(map[int64]bool),
		payloadDelay: make(map[int64]time.Duration),
		echoUpload:   true,
		calls:        make(map[string]int),
	}
	s.srv = httptest.NewServer(s.router())
	t.Cleanup(s.srv.Close)
	return s
}

// URL 服务地址
func (s *Server) URL() string {
	return s.srv.URL
}

// Add 添加图片并返回 id
func (s *Server) Add(img Image) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	img.ID = s.nextID
	s.nextID++
	if img.Type == "" {
		img.Type = "image/png"
	}
	if img.Data == nil {
		img.Data = PNG
	}
	if img.LikedBy == nil {
		img.LikedBy = make(map[string]bool)
	}
	cp := img
	s.images = append(s.images, &cp)
	return img.ID
}

// AddUser 注册用户
func (s *Server) AddUser(id, name, password, bio string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = user{name: name, password: password, bio: bio}
}

// FailPayload 让某张图片的 payload 请求返回 500
func (s *Server) FailPayload(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPayload[id] = true
}

// DelayPayload 让某张图片的 payload 请求延迟返回
func (s *Server) DelayPayload(id int64, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloadDelay[id] = d
}

// SetFailList 列表接口是否返回 500
func (s *Server) SetFailList(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failList = v
}

// SetFailWrites 写接口是否失败
func (s *Server) SetFailWrites(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = v
}

// SetEchoUpload 上传接口是否返回创建的描述
func (s *Server) SetEchoUpload(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.echoUpload = v
}

// ForceLikes like 类接口固定返回 n
func (s *Server) ForceLikes(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forcedLikes = &n
}

// SetPrivacyDelay 按调用序号（从 1 开始）决定 privacy 接口的响应延迟
func (s *Server) SetPrivacyDelay(fn func(call int) time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.privacyDelay = fn
}

// Image 读取服务端图片的副本
func (s *Server) Image(id int64) (Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if img := s.find(id); img != nil {
		return *img, true
	}
	return Image{}, false
}

// Calls 某个路由被调用的次数，key 形如 "GET /images/:id"
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

func (s *Server) find(id int64) *Image {
	for _, img := range s.images {
		if img.ID == id {
			return img
		}
	}
	return nil
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		s.mu.Lock()
		s.calls[c.Request.Method+" "+c.FullPath()]++
		s.mu.Unlock()
		c.Next()
	})

	r.GET("/images", s.list)
	r.GET("/images/user/:userid", s.userImages)
	r.GET("/images/:id", s.payload)
	r.GET("/images/:id/similar", s.similar)
	r.GET("/images/:id/filter", s.filter)
	r.POST("/images", s.upload)
	r.DELETE("/images/:id", s.delete)
	r.PATCH("/images/:id/privacy", s.privacy)
	r.PUT("/images/:id/toggle-like", s.toggleLike)
	r.POST("/images/:id/toggle-like", s.toggleLike)
	r.POST("/images/:id/like", s.like(true))
	r.POST("/images/:id/unlike", s.like(false))
	r.PUT("/images/:id/set-likes", s.setLikes)
	r.GET("/images/:id/like-status", s.likeStatus)
	r.POST("/api/auth/login", s.login)
	r.POST("/api/auth/register", s.register)
	r.GET("/users/:userid", s.profile)
	return r
}

func describe(img *Image) gin.H {
	h := gin.H{
		"id":         img.ID,
		"name":       img.Name,
		"type":       img.Type,
		"size":       len(img.Data),
		"similarity": 0.0,
		"url":        "/images/" + strconv.FormatInt(img.ID, 10),
		"likes":      img.Likes,
		"ispublic":   img.Public,
	}
	if img.Owner != "" {
		h["userid"] = img.Owner
	}
	return h
}

func (s *Server) lookup(c *gin.Context) *Image {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid id")
		return nil
	}
	img := s.find(id)
	if img == nil {
		c.String(http.StatusNotFound, "Image not found")
		return nil
	}
	return img
}

func (s *Server) list(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		c.String(http.StatusInternalServerError, "list failed")
		return
	}
	out := make([]gin.H, 0, len(s.images))
	for _, img := range s.images {
		out = append(out, describe(img))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) userImages(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		c.String(http.StatusInternalServerError, "list failed")
		return
	}
	userID := c.Param("userid")
	includePrivate := c.Query("includePrivate") == "true" && c.Query("currentUserid") == userID
	out := make([]gin.H, 0)
	for _, img := range s.images {
		if img.Owner != userID {
			continue
		}
		if !img.Public && !includePrivate {
			continue
		}
		out = append(out, describe(img))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) payload(c *gin.Context) {
	s.mu.Lock()
	img := s.lookup(c)
	if img == nil {
		s.mu.Unlock()
		return
	}
	fail := s.failPayload[img.ID]
	delay := s.payloadDelay[img.ID]
	data, typ := img.Data, img.Type
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-c.Request.Context().Done():
			return
		}
	}
	if fail {
		c.String(http.StatusInternalServerError, "payload unavailable")
		return
	}
	c.Data(http.StatusOK, typ, data)
}

func (s *Server) similar(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.lookup(c)
	if src == nil {
		return
	}
	n, err := strconv.Atoi(c.Query("number"))
	if err != nil || n <= 0 {
		c.String(http.StatusBadRequest, "Le paramètre 'number' doit être supérieur à 0")
		return
	}
	if d := c.Query("descriptor"); d != "rgbcube" && d != "huesat" {
		c.String(http.StatusBadRequest, "unknown descriptor")
		return
	}

	type scored struct {
		img   *Image
		score float64
	}
	var candidates []scored
	for _, img := range s.images {
		if img.ID == src.ID {
			continue
		}
		candidates = append(candidates, scored{img, 1 / (1 + math.Abs(float64(img.ID-src.ID)))})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	out := make([]gin.H, 0, len(candidates))
	for _, cand := range candidates {
		h := describe(cand.img)
		h["similarity"] = cand.score
		out = append(out, h)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) filter(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img := s.lookup(c)
	if img == nil {
		return
	}
	switch c.Query("filter") {
	case "gradienImage", "modif_lum", "invert", "rotation":
	default:
		c.String(http.StatusBadRequest, "Filtre inconnu : "+c.Query("filter"))
		return
	}
	data := img.Filtered
	if data == nil {
		data = img.Data
	}
	c.Data(http.StatusOK, img.Type, data)
}

func (s *Server) upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.String(http.StatusNoContent, "Veuillez sélectionner un fichier.")
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.String(http.StatusInternalServerError, "open failed")
		return
	}
	defer f.Close()
	data, _ := io.ReadAll(f)

	s.mu.Lock()
	failWrites, echo := s.failWrites, s.echoUpload
	s.mu.Unlock()
	if failWrites {
		c.String(http.StatusInternalServerError, "Erreur lors de l'enregistrement de l'image.")
		return
	}

	id := s.Add(Image{
		Name:   fh.Filename,
		Type:   fh.Header.Get("Content-Type"),
		Data:   data,
		Owner:  c.PostForm("userid"),
		Public: c.PostForm("ispublic") == "true",
	})

	if !echo {
		c.String(http.StatusCreated, "Image ajoutée avec succès.")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusCreated, describe(s.find(id)))
}

func (s *Server) delete(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		c.String(http.StatusInternalServerError, "delete failed")
		return
	}
	img := s.lookup(c)
	if img == nil {
		return
	}
	for i, it := range s.images {
		if it.ID == img.ID {
			s.images = append(s.images[:i], s.images[i+1:]...)
			break
		}
	}
	c.String(http.StatusOK, "Image deleted successfully\n")
}

func (s *Server) privacy(c *gin.Context) {
	s.mu.Lock()
	if s.failWrites {
		s.mu.Unlock()
		c.String(http.StatusForbidden, "not allowed")
		return
	}
	img := s.lookup(c)
	if img == nil {
		s.mu.Unlock()
		return
	}
	img.Public = !img.Public
	value := img.Public
	call := s.calls["PATCH /images/:id/privacy"]
	delayFn := s.privacyDelay
	s.mu.Unlock()

	if delayFn != nil {
		time.Sleep(delayFn(call))
	}
	c.JSON(http.StatusOK, gin.H{"ispublic": value})
}

func (s *Server) likesValue(img *Image) int {
	if s.forcedLikes != nil {
		return *s.forcedLikes
	}
	return img.Likes
}

func (s *Server) toggleLike(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		c.String(http.StatusInternalServerError, "like failed")
		return
	}
	img := s.lookup(c)
	if img == nil {
		return
	}
	userID := c.Query("userid")
	if userID == "" {
		c.String(http.StatusBadRequest, "userid required")
		return
	}
	if img.LikedBy[userID] {
		delete(img.LikedBy, userID)
		img.Likes--
	} else {
		img.LikedBy[userID] = true
		img.Likes++
	}
	c.JSON(http.StatusOK, gin.H{"likes": s.likesValue(img), "isLiked": img.LikedBy[userID]})
}

func (s *Server) like(liked bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.failWrites {
			c.String(http.StatusInternalServerError, "like failed")
			return
		}
		img := s.lookup(c)
		if img == nil {
			return
		}
		userID := c.Query("userid")
		if liked && !img.LikedBy[userID] {
			img.LikedBy[userID] = true
			img.Likes++
		}
		if !liked && img.LikedBy[userID] {
			delete(img.LikedBy, userID)
			img.Likes--
		}
		c.JSON(http.StatusOK, gin.H{"likes": s.likesValue(img), "isLiked": img.LikedBy[userID]})
	}
}

func (s *Server) setLikes(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img := s.lookup(c)
	if img == nil {
		return
	}
	n, err := strconv.Atoi(c.Query("likes"))
	if err != nil || n < 0 {
		c.String(http.StatusBadRequest, "invalid likes")
		return
	}
	img.Likes = n
	c.JSON(http.StatusOK, gin.H{"likes": s.likesValue(img)})
}

func (s *Server) likeStatus(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img := s.lookup(c)
	if img == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"isLiked": img.LikedBy[c.Query("userid")]})
}

func (s *Server) login(c *gin.Context) {
	var body struct {
		UserID   string `json:"userid"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.UserID == "" || body.Password == "" {
		c.String(http.StatusBadRequest, "Userid and password are required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[body.UserID]
	if !ok || u.password != body.Password {
		c.String(http.StatusUnauthorized, "Invalid credentials")
		return
	}
	c.JSON(http.StatusOK, gin.H{"userid": body.UserID, "name": u.name, "bio": u.bio})
}

func (s *Server) register(c *gin.Context) {
	var body struct {
		UserID   string `json:"userid"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.UserID == "" || body.Password == "" {
		c.String(http.StatusBadRequest, "Userid and password are required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[body.UserID]; exists {
		c.String(http.StatusConflict, "User ID already exists")
		return
	}
	s.users[body.UserID] = user{name: body.Name, password: body.Password}
	c.String(http.StatusCreated, "User registered successfully")
}

func (s *Server) profile(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[c.Param("userid")]
	if !ok {
		c.String(http.StatusNotFound, "User not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"userid": c.Param("userid"), "name": u.name, "bio": u.bio})
}
