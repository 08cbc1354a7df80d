package codegen

import "github.com/KaramelBytes/statm8/internal/ai"

// GenerationPrompt asks for the full set of analysis blocks for one dataset.
var GenerationPrompt = ai.PromptTemplate{
	System: `You are an expert data scientist specialized in Exploratory Data Analysis (EDA).

CRITICAL: Return ONLY pure Python code. DO NOT use markdown code fences (no ` + "```python or ```" + `).

Given dataset information, generate Python code blocks for comprehensive EDA analysis. Each code block should:
1. Be self-contained and executable
2. Use pandas, matplotlib, seaborn, and numpy
3. Include proper error handling
4. Save plots to the specified output directory
5. Print meaningful insights

Generate code for the following analyses:
- Data overview and structure
- Missing value analysis
- Numerical feature distributions
- Categorical feature distributions
- Correlation analysis
- Outlier detection
- Feature relationships

Important:
- Use 'df' as the DataFrame variable name
- Save plots using: plt.savefig(os.path.join(output_dir, 'plot_name.png'), bbox_inches='tight', dpi=300)
- Always close plots after saving: plt.close()
- Each code block should be independent and complete
- NO MARKDOWN FORMATTING - pure Python code only`,
	User: `Dataset Information:
File Path: {file_path}
Total Rows: {total_rows}
Total Columns: {total_columns}

Column Details:
{columns_info}

Sample Data:
{sample_rows}

Output Directory: {output_dir}

{comments_section}

Generate Python code blocks for comprehensive EDA. Return ONLY valid Python code blocks separated by '` + Separator + `'.
Each block should start with a comment describing what it does.`,
}

// RegenerationPrompt asks for a corrected replacement of one failing block.
var RegenerationPrompt = ai.PromptTemplate{
	System: `You are an expert data scientist. A previous code block failed to execute.
Generate a CORRECTED version that fixes the error.

CRITICAL RULES:
1. Return ONLY pure Python code - NO markdown code fences (no ` + "```python or ```" + `)
2. Use 'df' as the DataFrame variable name
3. Use pandas, matplotlib, seaborn, numpy
4. Save plots using: plt.savefig(os.path.join(output_dir, 'plot_name.png'), bbox_inches='tight', dpi=300)
5. Always close plots: plt.close()
6. Include proper error handling`,
	User: `File Path: {file_path}
Output Directory: {output_dir}
Task Description: {description}

Previous Code (FAILED):
{previous_code}

Error Message:
{error_msg}

Generate CORRECTED Python code. Return ONLY the code, NO markdown formatting, NO explanations.`,
}

// commentsSection wraps optional user instructions for the generation prompt.
func commentsSection(comments string) string {
	if comments == "" {
		return ""
	}
	return "User Comments/Instructions:\n" + comments +
		"\n\nPlease take these comments into consideration when generating the EDA code."
}
