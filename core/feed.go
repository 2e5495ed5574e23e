package core

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/feeds"
)

// feedBaseURL returns the absolute prefix for feed links. Feed readers
// reject relative urls, so without server.base-url the hostname and port
// have to do.
func feedBaseURL(config Config) string {
	if base := strings.TrimSuffix(config.Server.BaseURL, "/"); base != "" {
		return base
	}
	return fmt.Sprintf("http://%s:%d", config.Server.Hostname, config.Server.Port)
}

// BuildFeed assembles the syndication feed from the post index. Post links
// are made absolute against server.base-url when one is configured.
func BuildFeed(ctx *Context) *feeds.Feed {
	base := feedBaseURL(ctx.Config)

	feed := &feeds.Feed{
		Title:       ctx.Config.Server.Title,
		Description: ctx.Config.Server.Description,
		Link:        &feeds.Link{Href: base + "/"},
		Author: &feeds.Author{
			Name: ctx.Authors.Primary().FullName,
		},
		Updated: time.Now(),
	}

	limit := ctx.Config.Blog.FeedLimit
	for i, post := range ctx.Posts.All() {
		if limit > 0 && i >= limit {
			break
		}

		item := &feeds.Item{
			Title:       post.Title,
			Link:        &feeds.Link{Href: base + post.Permalink},
			Description: post.Summary,
			Created:     post.Date,
			Id:          base + post.Permalink,
		}
		if post.Author != "" {
			if author := ctx.Authors.Lookup(post.Author); author != nil {
				item.Author = &feeds.Author{Name: author.FullName, Email: author.Email}
			} else {
				item.Author = &feeds.Author{Name: post.Author}
			}
		}
		feed.Items = append(feed.Items, item)
	}

	return feed
}

// RssHandler serves the RSS 2.0 feed.
func RssHandler(ctx *Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		rss, err := BuildFeed(ctx).ToRss()
		if err != nil {
			Error("Failed to render RSS feed: %v", err)
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", []byte(rss))
	}
}

// AtomHandler serves the Atom feed.
func AtomHandler(ctx *Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		atom, err := BuildFeed(ctx).ToAtom()
		if err != nil {
			Error("Failed to render Atom feed: %v", err)
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Data(http.StatusOK, "application/atom+xml; charset=utf-8", []byte(atom))
	}
}
