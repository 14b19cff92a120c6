// Package toolkit groups the tools bots can offer to a model. Each
// sub-package builds a [toolbox.Tool] from its own configuration:
//
//   - weather: current weather and forecast from OpenWeatherMap
//   - minecraft: recent lines of a Minecraft server log
//   - imagegen: image generation through the OpenAI images API
//   - fetch: readable text of a web page
//
// [toolbox.Tool]: github.com/germanamz/egbert/pkg/tools/toolbox.Tool
package toolkit
