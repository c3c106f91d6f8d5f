package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer 启动一个 gin 假服务
func newTestServer(t *testing.T, register func(r *gin.Engine)) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	register(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, Options{Timeout: 5 * time.Second})
	require.NoError(t, err)
	return client
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	_, err := NewClient("", Options{})
	assert.Error(t, err)

	_, err = NewClient("ftp://example.com", Options{})
	assert.Error(t, err)

	c, err := NewClient("http://localhost:8080/", Options{})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.BaseURL())
}

func TestClient_GetJSON(t *testing.T) {
	client := newTestServer(t, func(r *gin.Engine) {
		r.GET("/images", func(c *gin.Context) {
			assert.NotEmpty(t, c.GetHeader(requestIDHeader))
			c.JSON(http.StatusOK, []gin.H{{"id": 1, "name": "a.png"}, {"id": 2, "name": "b.jpg"}})
		})
	})

	var out []map[string]interface{}
	err := client.GetJSON(context.Background(), "/images", nil, &out)
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, "b.jpg", out[1]["name"])
}

func TestClient_PropagatesRequestID(t *testing.T) {
	client := newTestServer(t, func(r *gin.Engine) {
		r.GET("/users/:userid", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"requestId": c.GetHeader(requestIDHeader)})
		})
	})

	var out map[string]string
	ctx := WithRequestID(context.Background(), "req-42")
	require.NoError(t, client.GetJSON(ctx, "/users/alice", nil, &out))
	assert.Equal(t, "req-42", out["requestId"])
	assert.Equal(t, "req-42", RequestIDFrom(ctx))
	assert.NotEqual(t, RequestIDFrom(context.Background()), RequestIDFrom(context.Background()))
}

func TestClient_QueryIsEncoded(t *testing.T) {
	client := newTestServer(t, func(r *gin.Engine) {
		r.GET("/images/:id/similar", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"number": c.Query("number"), "descriptor": c.Query("descriptor")})
		})
	})

	var out map[string]string
	err := client.GetJSON(context.Background(), "/images/4/similar", url.Values{
		"number":     {"3"},
		"descriptor": {"huesat"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "3", out["number"])
	assert.Equal(t, "huesat", out["descriptor"])
}

func TestClient_GetBinary(t *testing.T) {
	payload := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	client := newTestServer(t, func(r *gin.Engine) {
		r.GET("/images/:id", func(c *gin.Context) {
			c.Data(http.StatusOK, "image/png", payload)
		})
	})

	resp, err := client.GetBinary(context.Background(), "/images/1", nil)
	require.NoError(t, err)
	assert.Equal(t, payload, resp.Body)
	assert.Equal(t, "image/png", resp.ContentType)
}

// TestClient_Non2xx 非 2xx 必须返回 *Error
func TestClient_Non2xx(t *testing.T) {
	client := newTestServer(t, func(r *gin.Engine) {
		r.GET("/images/:id", func(c *gin.Context) {
			c.String(http.StatusNotFound, "Image not found")
		})
		r.DELETE("/images/:id", func(c *gin.Context) {
			c.String(http.StatusInternalServerError, "boom")
		})
	})

	_, err := client.GetBinary(context.Background(), "/images/9", nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var te *Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "Image not found", te.Body)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)

	err = client.SendJSON(context.Background(), http.MethodDelete, "/images/9", nil, nil, nil)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
}

// TestClient_GarbledJSON 无法解码的 JSON 不能返回部分结果
func TestClient_GarbledJSON(t *testing.T) {
	client := newTestServer(t, func(r *gin.Engine) {
		r.GET("/images", func(c *gin.Context) {
			c.Data(http.StatusOK, "application/json", []byte(`[{"id": 1,`))
		})
	})

	var out []map[string]interface{}
	err := client.GetJSON(context.Background(), "/images", nil, &out)
	require.Error(t, err)
	assert.Equal(t, http.StatusOK, StatusCode(err))
	assert.Empty(t, out)
}

func TestClient_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client, err := NewClient(base, Options{Timeout: time.Second})
	require.NoError(t, err)

	_, err = client.GetBinary(context.Background(), "/images/1", nil)
	require.Error(t, err)
	assert.Equal(t, 0, StatusCode(err))
}

func TestClient_PostMultipart(t *testing.T) {
	client := newTestServer(t, func(r *gin.Engine) {
		r.POST("/images", func(c *gin.Context) {
			fh, err := c.FormFile("file")
			if !assert.NoError(t, err) {
				c.Status(http.StatusBadRequest)
				return
			}
			f, _ := fh.Open()
			defer f.Close()
			data, _ := io.ReadAll(f)

			c.JSON(http.StatusCreated, gin.H{
				"name":     fh.Filename,
				"type":     fh.Header.Get("Content-Type"),
				"size":     len(data),
				"userid":   c.PostForm("userid"),
				"ispublic": c.PostForm("ispublic"),
			})
		})
	})

	resp, err := client.PostMultipart(context.Background(), "/images", File{
		Field:       "file",
		Name:        "cat.png",
		ContentType: "image/png",
		Content:     bytesReader("abc"),
	}, map[string]string{"userid": "alice", "ispublic": "true"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var out map[string]interface{}
	require.NoError(t, resp.DecodeJSON(http.MethodPost, "/images", &out))
	assert.Equal(t, "cat.png", out["name"])
	assert.Equal(t, "image/png", out["type"])
	assert.Equal(t, float64(3), out["size"])
	assert.Equal(t, "alice", out["userid"])
	assert.Equal(t, "true", out["ispublic"])
}

func TestClient_RateLimitHonorsContext(t *testing.T) {
	client := newTestServer(t, func(r *gin.Engine) {
		r.GET("/images", func(c *gin.Context) { c.JSON(http.StatusOK, []gin.H{}) })
	})
	client.limiter = newTestLimiter()

	// 第一次消耗掉唯一的令牌
	require.NoError(t, client.GetJSON(context.Background(), "/images", nil, &[]gin.H{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := client.GetJSON(ctx, "/images", nil, &[]gin.H{})
	assert.Error(t, err)
}
