package core

import (
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// ListingPage is the template payload for layout/list.html.
type ListingPage struct {
	SiteTitle       string
	SiteDescription string
	BrandingFavicon string
	BrandingCssFile string
	Title           string
	Posts           []Post
	Categories      []string
	Page            int
	TotalPages      int
	Navigation      Navigation
}

// RenderListing renders a post listing through layout/list.html. The layout
// file is looked up in the FileManager so it participates in cache
// invalidation like any other layout.
func RenderListing(ctx *Context, page ListingPage) ([]byte, error) {
	layout := ctx.FileManager.GetFile("layout/list.html")
	if layout == nil {
		return nil, fmt.Errorf("%w: layout/list.html", ErrFileNotFound)
	}

	if layout.Content == nil {
		layout.Content = layout.ReadFile(ctx.Config.SiteDirectory)
	}
	if layout.Content == nil {
		return nil, fmt.Errorf("%w: layout/list.html", ErrFileNotFound)
	}

	tmpl, err := template.New("layout/list.html").Parse(string(layout.Content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing layout: %w", err)
	}

	var out strings.Builder
	if err := tmpl.Execute(&out, page); err != nil {
		return nil, fmt.Errorf("failed to execute listing layout: %w", err)
	}

	return []byte(out.String()), nil
}

func newListingPage(ctx *Context, title string) ListingPage {
	return ListingPage{
		SiteTitle:       ctx.Config.Server.Title,
		SiteDescription: ctx.Config.Server.Description,
		BrandingFavicon: ctx.Config.Branding.Favicon,
		BrandingCssFile: ctx.Config.Branding.CssFile,
		Title:           title,
		Navigation:      ctx.Navigation,
		Page:            1,
		TotalPages:      1,
	}
}

// ArchiveHandler serves /posts, the paginated archive of all posts.
func ArchiveHandler(ctx *Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		pageNo := 1
		if p, err := strconv.Atoi(c.Query("page")); err == nil && p > 0 {
			pageNo = p
		}

		posts, totalPages := ctx.Posts.Page(pageNo, ctx.Config.Blog.PostsPerPage)

		page := newListingPage(ctx, "Archive")
		page.Posts = posts
		page.Page = pageNo
		page.TotalPages = totalPages

		body, err := RenderListing(ctx, page)
		if err != nil {
			Error("Failed to render archive: %v", err)
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		RecordPageServed()
		c.Data(http.StatusOK, "text/html; charset=utf-8", body)
	}
}

// CategoriesHandler serves /categories, the list of categories in use.
func CategoriesHandler(ctx *Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := newListingPage(ctx, "Categories")
		page.Categories = ctx.Posts.CategoryNames()

		body, err := RenderListing(ctx, page)
		if err != nil {
			Error("Failed to render categories: %v", err)
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		RecordPageServed()
		c.Data(http.StatusOK, "text/html; charset=utf-8", body)
	}
}

// CategoryHandler serves /categories/<name>, the posts of one category.
func CategoryHandler(ctx *Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		category := c.Param("category")
		posts := ctx.Posts.ByCategory(category)
		if len(posts) == 0 {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}

		page := newListingPage(ctx, category)
		page.Posts = posts

		body, err := RenderListing(ctx, page)
		if err != nil {
			Error("Failed to render category %s: %v", category, err)
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		RecordPageServed()
		c.Data(http.StatusOK, "text/html; charset=utf-8", body)
	}
}
